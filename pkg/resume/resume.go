// Package resume uploads and fetches the resume/job-description pair the
// service uses to generate interview questions.
package resume

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mockmate/mockmate/pkg/api"
)

// Info is the previously stored resume and job description.
type Info struct {
	ResumeName string `json:"resumeName"`
	ResumeURL  string `json:"resumeUrl"`
	JDText     string `json:"jdText"`
}

// Service wraps the resume endpoints.
type Service struct {
	api *api.Client
}

// NewService creates a resume service on the shared API client.
func NewService(client *api.Client) *Service {
	return &Service{api: client}
}

// Upload submits the resume file plus job description. The service
// accepts this once per round; a repeat upload is a server-side 400.
func (s *Service) Upload(ctx context.Context, filename string, data []byte, jobDescription string) error {
	if filename == "" || len(data) == 0 {
		return fmt.Errorf("resume: no file to upload")
	}
	err := s.api.PostMultipart(ctx, "/upload-resume",
		map[string]string{"job_description": jobDescription},
		[]api.FilePart{{Field: "file", Filename: filename, Data: data}},
		nil)
	if err != nil {
		return fmt.Errorf("resume: upload: %w", err)
	}
	return nil
}

// Fetch returns the stored resume/JD pair. A first visit with nothing
// uploaded yet is not an error: it returns (nil, nil).
func (s *Service) Fetch(ctx context.Context) (*Info, error) {
	var info Info
	if err := s.api.GetJSON(ctx, "/get-resume-jd", &info); err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.Status == 400 &&
			strings.Contains(strings.ToLower(apiErr.Message), "not uploaded") {
			return nil, nil
		}
		return nil, fmt.Errorf("resume: fetch: %w", err)
	}
	return &info, nil
}
