package dto

// CreateReassignmentRequest asks to move to another session.
type CreateReassignmentRequest struct {
	ToSessionID string `json:"toSessionId" validate:"required"`
}

// ReviewReassignmentRequest optionally explains a denial.
type ReviewReassignmentRequest struct {
	Reason string `json:"reason"`
}
