package persistence

import (
	"fmt"
	"net/url"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// NewMongoDb builds a client for the given server. The caller pings it.
func NewMongoDb(host, port, user, password, dbName string) (*mongo.Client, error) {
	if host == "" {
		return nil, fmt.Errorf("mongo host is not configured")
	}
	u := &url.URL{Scheme: "mongodb", Host: fmt.Sprintf("%s:%s", host, port), Path: "/" + dbName}
	if user != "" {
		u.User = url.UserPassword(user, password)
		u.RawQuery = "authSource=admin"
	}
	return mongo.Connect(options.Client().ApplyURI(u.String()))
}
