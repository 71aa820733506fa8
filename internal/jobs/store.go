package jobs

import "context"

// Store persists delivery jobs so pending uploads survive a restart.
type Store interface {
	LoadJobs(ctx context.Context) ([]*DeliveryJob, error)
	UpsertJob(ctx context.Context, job *DeliveryJob) error
	DeleteJob(ctx context.Context, jobID string) error
	// DeleteJobData removes the stored file content of a job.
	DeleteJobData(ctx context.Context, jobID string) error
}
