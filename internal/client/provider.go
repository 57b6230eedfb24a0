package client

import (
	"context"
	"time"

	"github.com/loopyluu007/anime-ai/internal/model"
)

// ScriptGenerator drafts a structured script from a prompt
type ScriptGenerator interface {
	GenerateScript(ctx context.Context, params *model.ScriptParams) (*model.Script, error)
}

// ImageGenerator synthesizes a single image
type ImageGenerator interface {
	GenerateImage(ctx context.Context, params *model.ImageParams) (*ImageResult, error)
}

// VideoGenerator submits video jobs and follows them to completion
type VideoGenerator interface {
	GenerateVideo(ctx context.Context, params *model.VideoParams) (*VideoJob, error)
	GetVideoStatus(ctx context.Context, jobID string) (*VideoStatus, error)
	WaitForVideo(ctx context.Context, jobID string, maxWait, interval time.Duration) (*VideoStatus, error)
}

// ImageResult is the first image of a generation response
type ImageResult struct {
	URL           string
	RevisedPrompt string
}

// VideoJob identifies a submitted video generation
type VideoJob struct {
	JobID  string
	Status string
}

// Video job states reported by the provider
const (
	VideoStatusQueued     = "queued"
	VideoStatusProcessing = "processing"
	VideoStatusCompleted  = "completed"
	VideoStatusFailed     = "failed"
)

// VideoStatus is a snapshot of a video job
type VideoStatus struct {
	JobID    string
	Status   string
	URL      string
	Progress int
	Error    string
}
