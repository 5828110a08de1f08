package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"
)

// ImageScreener rejects photos that must not be published.
type ImageScreener interface {
	Screen(ctx context.Context, data []byte) error
}

type SafeSearchResult struct {
	Adult    string
	Violence string
	Racy     string
}

func isLikelyOrHigher(l string) bool {
	return l == "LIKELY" || l == "VERY_LIKELY"
}

func (r *SafeSearchResult) IsUnsafe() bool {
	return isLikelyOrHigher(r.Adult) || isLikelyOrHigher(r.Violence) || isLikelyOrHigher(r.Racy)
}

// VisionScreener runs Cloud Vision SAFE_SEARCH_DETECTION on the uploaded
// bytes before they are stored anywhere.
type VisionScreener struct {
	svc *vision.Service
}

// NewVisionScreener uses Application Default Credentials.
func NewVisionScreener(ctx context.Context) (*VisionScreener, error) {
	svc, err := vision.NewService(ctx, option.WithScopes(vision.CloudPlatformScope))
	if err != nil {
		return nil, fmt.Errorf("safesearch: vision client: %w", err)
	}
	return &VisionScreener{svc: svc}, nil
}

func (v *VisionScreener) Detect(ctx context.Context, data []byte) (*SafeSearchResult, error) {
	req := &vision.AnnotateImageRequest{
		Image:    &vision.Image{Content: base64.StdEncoding.EncodeToString(data)},
		Features: []*vision.Feature{{Type: "SAFE_SEARCH_DETECTION"}},
	}
	resp, err := v.svc.Images.Annotate(&vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{req},
	}).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	if len(resp.Responses) == 0 {
		return &SafeSearchResult{}, nil
	}
	r := resp.Responses[0]
	if r.Error != nil {
		return nil, fmt.Errorf("annotate: %s", r.Error.Message)
	}
	ss := r.SafeSearchAnnotation
	if ss == nil {
		return &SafeSearchResult{}, nil
	}
	return &SafeSearchResult{Adult: ss.Adult, Violence: ss.Violence, Racy: ss.Racy}, nil
}

func (v *VisionScreener) Screen(ctx context.Context, data []byte) error {
	ss, err := v.Detect(ctx, data)
	if err != nil {
		return fmt.Errorf("safesearch: %w", err)
	}
	log.Printf("[moderation] SafeSearch adult=%s violence=%s racy=%s unsafe=%v",
		ss.Adult, ss.Violence, ss.Racy, ss.IsUnsafe())
	if ss.IsUnsafe() {
		return ErrImageRejected
	}
	return nil
}
