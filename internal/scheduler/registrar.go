package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	cloudscheduler "google.golang.org/api/cloudscheduler/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	pubsub "google.golang.org/api/pubsub/v1"

	"github.com/teemow/gmailnotifier/internal/logging"
)

// DefaultSchedule runs the check every ten minutes.
const DefaultSchedule = "*/10 * * * *"

// Config carries the deployment coordinates the Registrar needs.
type Config struct {
	// Project is the GCP project ID owning the topic and job.
	Project string

	// Region is the Cloud Scheduler location, e.g. "us-central1".
	Region string

	// Schedule is the cron expression for the recurring job.
	// Empty means DefaultSchedule.
	Schedule string
}

// Registrar creates the delivery topic and the recurring check job.
// Both calls authenticate as the service (application default credentials),
// not as the user: the user's stored credential is a precondition checked
// by the handler, consumed later when the check actually runs.
type Registrar struct {
	scheduler *cloudscheduler.Service
	pubsub    *pubsub.Service
	project   string
	region    string
	schedule  string
	logger    *slog.Logger
}

// NewRegistrar creates a Registrar for the given deployment. Additional
// options (custom endpoint, plain HTTP client) are primarily for tests
// against a fake API server.
func NewRegistrar(ctx context.Context, cfg Config, logger *slog.Logger, opts ...option.ClientOption) (*Registrar, error) {
	if cfg.Project == "" {
		return nil, fmt.Errorf("project cannot be empty")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("region cannot be empty")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}

	schedulerSvc, err := cloudscheduler.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating cloud scheduler service: %w", err)
	}

	pubsubSvc, err := pubsub.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub service: %w", err)
	}

	return &Registrar{
		scheduler: schedulerSvc,
		pubsub:    pubsubSvc,
		project:   cfg.Project,
		region:    cfg.Region,
		schedule:  cfg.Schedule,
		logger:    logging.WithComponent(logger, "scheduler"),
	}, nil
}

// EnsureTopic creates the delivery topic for the email if it does not
// already exist, and returns its fully qualified name. An existing topic
// is success: topic creation must be idempotent so re-registration never
// fails on this step.
func (r *Registrar) EnsureTopic(ctx context.Context, email string) (string, error) {
	name := fmt.Sprintf("projects/%s/topics/%s", r.project, TopicID(email))

	_, err := r.pubsub.Projects.Topics.Create(name, &pubsub.Topic{}).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
			r.logger.Debug("topic already exists", logging.Topic(name))
			return name, nil
		}
		return "", fmt.Errorf("creating topic %s: %w", name, err)
	}

	r.logger.Info("topic created", logging.Topic(name))
	return name, nil
}

// RegisterJob creates the recurring check job targeting topicName, or
// updates it in place if a job for this email already exists. The payload
// carries the email and the registration time.
func (r *Registrar) RegisterJob(ctx context.Context, email, topicName string, registeredAt time.Time) (string, error) {
	parent := fmt.Sprintf("projects/%s/locations/%s", r.project, r.region)
	name := fmt.Sprintf("%s/jobs/%s", parent, JobID(email))

	data, err := EncodePayload(Payload{
		EmailAddress: email,
		Timestamp:    registeredAt,
	})
	if err != nil {
		return "", err
	}

	job := &cloudscheduler.Job{
		Name:     name,
		Schedule: r.schedule,
		TimeZone: "Etc/UTC",
		PubsubTarget: &cloudscheduler.PubsubTarget{
			TopicName: topicName,
			Data:      data,
		},
	}

	_, err = r.scheduler.Projects.Locations.Jobs.Create(parent, job).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
			// Re-registration: refresh the existing job's schedule and payload.
			if _, err := r.scheduler.Projects.Locations.Jobs.Patch(name, job).Context(ctx).Do(); err != nil {
				return "", fmt.Errorf("updating job %s: %w", name, err)
			}
			r.logger.Info("job updated", logging.Job(name), logging.UserHash(email))
			return name, nil
		}
		return "", fmt.Errorf("creating job %s: %w", name, err)
	}

	r.logger.Info("job created", logging.Job(name), logging.UserHash(email))
	return name, nil
}

// EnsureSchedule runs the full registration sequence for the email: topic
// first, then the job targeting it.
func (r *Registrar) EnsureSchedule(ctx context.Context, email string, registeredAt time.Time) error {
	topicName, err := r.EnsureTopic(ctx, email)
	if err != nil {
		return err
	}
	if _, err := r.RegisterJob(ctx, email, topicName, registeredAt); err != nil {
		return err
	}
	return nil
}
