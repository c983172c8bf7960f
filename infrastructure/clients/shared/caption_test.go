package shared

import (
	"testing"

	"content-publisher/domain/model"

	"github.com/stretchr/testify/assert"
)

func TestComposeCaption(t *testing.T) {
	req := &model.PublishRequest{
		Title:    "Launch",
		Body:     " New release is out ",
		Hashtags: []string{"golang", "#release", " open source "},
		Mentions: []string{"@gopher", "team"},
	}
	assert.Equal(t, "New release is out\n\n#golang #release #opensource\n\n@gopher @team", ComposeCaption(req))
	assert.Equal(t, "Launch\n\nNew release is out\n\n#golang #release #opensource\n\n@gopher @team", ComposeText(req))
}

func TestComposeCaption_Empty(t *testing.T) {
	assert.Equal(t, "", ComposeCaption(nil))
	assert.Equal(t, "", ComposeCaption(&model.PublishRequest{Hashtags: []string{"#", " "}}))
	assert.Equal(t, "Only title", ComposeText(&model.PublishRequest{Title: "Only title"}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "he…", Truncate("hello", 3))
	assert.Equal(t, "hi", Truncate("hi", 10))
	assert.Equal(t, "hello", Truncate("hello", 0))
}
