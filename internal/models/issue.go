package models

import (
	"strings"
	"time"
)

type IssueStatus string

const (
	StatusPending    IssueStatus = "Pending"
	StatusInProgress IssueStatus = "In Progress"
	StatusResolved   IssueStatus = "Resolved"
)

// rank orders statuses along the only allowed direction of travel.
func (s IssueStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusInProgress:
		return 1
	case StatusResolved:
		return 2
	}
	return -1
}

func (s IssueStatus) Valid() bool { return s.rank() >= 0 }

// CanAdvanceTo reports whether an issue in status s may move to next.
// Statuses only move forward; skipping In Progress is allowed.
func (s IssueStatus) CanAdvanceTo(next IssueStatus) bool {
	return s.Valid() && next.Valid() && next.rank() > s.rank()
}

// Predecessors returns every status that may legally advance to s.
func (s IssueStatus) Predecessors() []IssueStatus {
	var out []IssueStatus
	for _, p := range []IssueStatus{StatusPending, StatusInProgress, StatusResolved} {
		if p.CanAdvanceTo(s) {
			out = append(out, p)
		}
	}
	return out
}

type PriorityLabel string

const (
	PriorityLow    PriorityLabel = "Low"
	PriorityMedium PriorityLabel = "Medium"
	PriorityHigh   PriorityLabel = "High"
)

type GeoPoint struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}

// ScoreBreakdown records every term that went into PriorityScore.
type ScoreBreakdown struct {
	Severity       int `json:"severity" bson:"severity"`
	Frequency      int `json:"frequency" bson:"frequency"`
	LocationImpact int `json:"locationImpact" bson:"location_impact"`
	TimePending    int `json:"timePending" bson:"time_pending"`
	AIAdjustment   int `json:"aiAdjustment" bson:"ai_adjustment"`
}

type Issue struct {
	ID             string         `json:"id" bson:"_id"`
	Title          string         `json:"title" bson:"title"`
	Description    string         `json:"description" bson:"description"`
	ImageURL       string         `json:"imageUrl" bson:"image_url"`
	Location       GeoPoint       `json:"location" bson:"location"`
	Category       string         `json:"category" bson:"category"`
	Priority       PriorityLabel  `json:"priority" bson:"priority"`
	PriorityScore  int            `json:"priorityScore" bson:"priority_score"`
	ScoreBreakdown ScoreBreakdown `json:"scoreBreakdown" bson:"score_breakdown"`
	Explanation    string         `json:"explanation" bson:"explanation"`
	// ClassifiedBy is "model" or "rules".
	ClassifiedBy string      `json:"classifiedBy" bson:"classified_by"`
	Status       IssueStatus `json:"status" bson:"status"`

	ReportedAsFake   bool       `json:"reportedAsFake" bson:"reported_as_fake"`
	ReportedAsFakeBy string     `json:"reportedAsFakeBy,omitempty" bson:"reported_as_fake_by,omitempty"`
	ReportedAsFakeAt *time.Time `json:"reportedAsFakeAt,omitempty" bson:"reported_as_fake_at,omitempty"`

	ReportedBy string    `json:"reportedBy" bson:"reported_by"`
	CreatedAt  time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updated_at"`
}

// CreateIssueRequest is the raw submission. Lat/Lng stay strings until
// validated so "missing" and "malformed" can be told apart.
type CreateIssueRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Lat         string `json:"lat"`
	Lng         string `json:"lng"`
}

type UpdateStatusRequest struct {
	Status IssueStatus `json:"status"`
}

func (r *CreateIssueRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if strings.TrimSpace(r.Title) == "" {
		errors["title"] = "Title is required"
	} else if len(r.Title) > 200 {
		errors["title"] = "Title is too long"
	}
	if strings.TrimSpace(r.Description) == "" {
		errors["description"] = "Description is required"
	} else if len(r.Description) > 4000 {
		errors["description"] = "Description is too long"
	}
	if strings.TrimSpace(r.Lat) == "" || strings.TrimSpace(r.Lng) == "" {
		errors["location"] = "Location coordinates are required"
	} else if _, err := r.Point(); err != nil {
		errors["location"] = err.Error()
	}

	return errors
}

// StatusCount is one row of the admin status summary.
type StatusCount struct {
	Status IssueStatus `json:"status" bson:"_id"`
	Count  int64       `json:"count" bson:"count"`
}

// IssueStats summarizes issues per status for the admin dashboard.
type IssueStats struct {
	Total    int64         `json:"total"`
	ByStatus []StatusCount `json:"byStatus"`
}
