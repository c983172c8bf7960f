package dto

import "content-publisher/domain/model"

type JobStatsResponse struct {
	model.JobStats
	Concurrency int `json:"concurrency"`
}
