package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/weekend-academy-api/internal/authz"
	"github.com/noah-isme/weekend-academy-api/internal/dto"
	"github.com/noah-isme/weekend-academy-api/internal/models"
	"github.com/noah-isme/weekend-academy-api/internal/notify"
	"github.com/noah-isme/weekend-academy-api/pkg/database"
	appErrors "github.com/noah-isme/weekend-academy-api/pkg/errors"
	"github.com/noah-isme/weekend-academy-api/pkg/logger"
)

const (
	sessionFullReason = "Session is full"
	staleMoveReason   = "Student's session changed since the request"
)

type reassignmentRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, req *models.ReassignmentRequest) error
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ReassignmentRequest, error)
	HasPending(ctx context.Context, exec sqlx.ExtContext, studentID string, day models.Day) (bool, error)
	MarkReviewed(ctx context.Context, exec sqlx.ExtContext, id string, status models.ReassignmentStatus, reviewerID string, reason *string, reviewedAt time.Time) error
	List(ctx context.Context, filter models.ReassignmentFilter) ([]models.ReassignmentRequest, int, error)
}

type reassignmentStudentRepository interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Student, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Student, error)
	MoveSession(ctx context.Context, exec sqlx.ExtContext, studentID string, day models.Day, sessionID, classID string, updatedAt time.Time) error
}

// ReassignmentService moves students between sessions of the same day.
type ReassignmentService struct {
	tx            database.TxProvider
	reassignments reassignmentRepository
	students      reassignmentStudentRepository
	sessions      sessionReader
	ledger        *CapacityLedger
	notifier      notificationSender
	metrics       *MetricsService
	validator     *validator.Validate
	logger        *zap.Logger
	lockTimeout   time.Duration
	now           func() time.Time
}

// NewReassignmentService constructs the service.
func NewReassignmentService(
	tx database.TxProvider,
	reassignments reassignmentRepository,
	students reassignmentStudentRepository,
	sessions sessionReader,
	ledger *CapacityLedger,
	notifier notificationSender,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	lockTimeout time.Duration,
) *ReassignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReassignmentService{
		tx:            tx,
		reassignments: reassignments,
		students:      students,
		sessions:      sessions,
		ledger:        ledger,
		notifier:      notifier,
		metrics:       metrics,
		validator:     validate,
		logger:        logger,
		lockTimeout:   lockTimeout,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Request files a PENDING move of the calling student to toSessionID. The
// request holds a pending seat in the target session until reviewed.
func (s *ReassignmentService) Request(ctx context.Context, req dto.CreateReassignmentRequest, actor *models.JWTClaims) (*models.ReassignmentRequest, error) {
	if !authz.Can(actor, authz.ReassignmentRequest) {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reassignment payload")
	}

	student, err := s.students.FindByID(ctx, nil, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to load student")
	}
	target, err := s.loadSession(ctx, nil, req.ToSessionID)
	if err != nil {
		return nil, err
	}
	fromID := student.SessionFor(target.Day)
	if fromID == target.ID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student is already assigned to this session")
	}
	current, err := s.loadSession(ctx, nil, fromID)
	if err != nil {
		return nil, err
	}
	if current.CourseID != target.CourseID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "target session belongs to another course")
	}

	request := &models.ReassignmentRequest{
		StudentID:     student.ID,
		FromSessionID: current.ID,
		ToSessionID:   target.ID,
		Day:           target.Day,
		Status:        models.ReassignmentPending,
		RequestedAt:   s.now(),
	}
	err = database.WithTx(ctx, s.tx, s.lockTimeout, func(tx *sqlx.Tx) error {
		// the student row lock serialises concurrent requests of one student
		locked, err := s.lockStudent(ctx, tx, student.ID)
		if err != nil {
			return err
		}
		if locked.SessionFor(target.Day) != current.ID {
			return appErrors.Clone(appErrors.ErrConflict, "student session changed, retry the request")
		}
		pending, err := s.reassignments.HasPending(ctx, tx, student.ID, target.Day)
		if err != nil {
			return database.Translate(err, "failed to check pending requests")
		}
		if pending {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("a %s reassignment request is already pending", strings.ToLower(string(target.Day))))
		}
		if err := s.ledger.Lock(ctx, tx, target.ID); err != nil {
			return database.Translate(err, "failed to lock session")
		}
		if _, err := s.ledger.Require(ctx, tx, target.ID, 1, "reassign_request"); err != nil {
			return database.Translate(err, "failed to read session availability")
		}
		if err := s.reassignments.Create(ctx, tx, request); err != nil {
			if database.IsUniqueViolation(err) {
				return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "a reassignment request for this day is already pending")
			}
			return database.Translate(err, "failed to store reassignment request")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("reassignment requested",
		zap.String("reassignment_id", request.ID), zap.String("student_id", student.ID), zap.String("to_session_id", target.ID))
	return request, nil
}

// Approve moves the student into the target session. When the target has
// filled up since the request, the request is denied instead and SEAT_TAKEN
// is returned once the denial is committed. A request whose origin no longer
// matches the student's current session is denied as stale with CONFLICT.
func (s *ReassignmentService) Approve(ctx context.Context, requestID string, actor *models.JWTClaims) (*models.ReassignmentRequest, error) {
	if !authz.Can(actor, authz.ReassignmentReview) {
		return nil, appErrors.ErrForbidden
	}

	var (
		request   *models.ReassignmentRequest
		target    *models.Session
		seatTaken bool
		stale     bool
	)
	err := database.WithTx(ctx, s.tx, s.lockTimeout, func(tx *sqlx.Tx) error {
		var err error
		request, target, err = s.lockPending(ctx, tx, requestID, actor)
		if err != nil {
			return err
		}
		student, err := s.lockStudent(ctx, tx, request.StudentID)
		if err != nil {
			return err
		}
		reviewedAt := s.now()
		if student.SessionFor(target.Day) != request.FromSessionID {
			reason := staleMoveReason
			if err := s.reassignments.MarkReviewed(ctx, tx, request.ID, models.ReassignmentDenied, actor.UserID, &reason, reviewedAt); err != nil {
				return database.Translate(err, "failed to deny reassignment")
			}
			request.Status = models.ReassignmentDenied
			request.Reason = &reason
			request.ReviewedByID = &actor.UserID
			request.ReviewedAt = &reviewedAt
			stale = true
			return nil
		}
		if err := s.ledger.Lock(ctx, tx, target.ID); err != nil {
			return database.Translate(err, "failed to lock session")
		}

		if _, err := s.ledger.Require(ctx, tx, target.ID, 0, "reassign_approve"); err != nil {
			if !errors.Is(err, appErrors.ErrCapacityExceeded) {
				return database.Translate(err, "failed to read session availability")
			}
			reason := sessionFullReason
			if err := s.reassignments.MarkReviewed(ctx, tx, request.ID, models.ReassignmentDenied, actor.UserID, &reason, reviewedAt); err != nil {
				return database.Translate(err, "failed to deny reassignment")
			}
			request.Status = models.ReassignmentDenied
			request.Reason = &reason
			seatTaken = true
		} else {
			if err := s.students.MoveSession(ctx, tx, request.StudentID, target.Day, target.ID, target.ClassID, reviewedAt); err != nil {
				return database.Translate(err, "failed to move student")
			}
			if err := s.reassignments.MarkReviewed(ctx, tx, request.ID, models.ReassignmentApproved, actor.UserID, nil, reviewedAt); err != nil {
				return database.Translate(err, "failed to approve reassignment")
			}
			request.Status = models.ReassignmentApproved
		}
		request.ReviewedByID = &actor.UserID
		request.ReviewedAt = &reviewedAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	if stale {
		s.notifyStudent(ctx, request, target, notify.TemplateReassignmentDenied)
		s.logger.Info("reassignment denied, request is stale", zap.String("reassignment_id", request.ID))
		return nil, appErrors.Clone(appErrors.ErrConflict, "request is stale")
	}
	if seatTaken {
		s.notifyStudent(ctx, request, target, notify.TemplateReassignmentDenied)
		s.logger.Info("reassignment denied, session full", zap.String("reassignment_id", request.ID))
		return nil, appErrors.Clone(appErrors.ErrSeatTaken, sessionFullReason)
	}
	s.notifyStudent(ctx, request, target, notify.TemplateReassignmentApproved)
	logger.For(ctx, s.logger).Info("reassignment approved",
		zap.String("reassignment_id", request.ID), zap.String("student_id", request.StudentID), zap.String("actor_id", actor.UserID))
	return request, nil
}

// Deny closes a PENDING request. The reason is optional.
func (s *ReassignmentService) Deny(ctx context.Context, requestID, reason string, actor *models.JWTClaims) (*models.ReassignmentRequest, error) {
	if !authz.Can(actor, authz.ReassignmentReview) {
		return nil, appErrors.ErrForbidden
	}
	var reasonPtr *string
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		reasonPtr = &trimmed
	}

	var (
		request *models.ReassignmentRequest
		target  *models.Session
	)
	err := database.WithTx(ctx, s.tx, s.lockTimeout, func(tx *sqlx.Tx) error {
		var err error
		request, target, err = s.lockPending(ctx, tx, requestID, actor)
		if err != nil {
			return err
		}
		reviewedAt := s.now()
		if err := s.reassignments.MarkReviewed(ctx, tx, request.ID, models.ReassignmentDenied, actor.UserID, reasonPtr, reviewedAt); err != nil {
			return database.Translate(err, "failed to deny reassignment")
		}
		request.Status = models.ReassignmentDenied
		request.Reason = reasonPtr
		request.ReviewedByID = &actor.UserID
		request.ReviewedAt = &reviewedAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyStudent(ctx, request, target, notify.TemplateReassignmentDenied)
	return request, nil
}

// List returns reassignment requests visible to actor.
func (s *ReassignmentService) List(ctx context.Context, filter models.ReassignmentFilter, actor *models.JWTClaims) ([]models.ReassignmentRequest, *models.Pagination, error) {
	if !authz.Can(actor, authz.ReassignmentRead) {
		return nil, nil, appErrors.ErrForbidden
	}
	if !actor.IsAdmin() {
		filter.CourseID = actor.Course()
	}
	items, total, err := s.reassignments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list reassignment requests")
	}
	page, size, _ := models.NormalizePage(filter.Page, filter.PageSize)
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *ReassignmentService) lockPending(ctx context.Context, tx *sqlx.Tx, requestID string, actor *models.JWTClaims) (*models.ReassignmentRequest, *models.Session, error) {
	request, err := s.reassignments.LockByID(ctx, tx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "reassignment request not found")
		}
		return nil, nil, database.Translate(err, "failed to load reassignment request")
	}
	if request.Status != models.ReassignmentPending {
		return nil, nil, appErrors.Clone(appErrors.ErrAlreadyProcessed, fmt.Sprintf("request already %s", strings.ToLower(string(request.Status))))
	}
	target, err := s.loadSession(ctx, tx, request.ToSessionID)
	if err != nil {
		return nil, nil, err
	}
	if !authz.InCourse(actor, target.CourseID) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "request belongs to another course")
	}
	return request, target, nil
}

func (s *ReassignmentService) lockStudent(ctx context.Context, tx *sqlx.Tx, id string) (*models.Student, error) {
	student, err := s.students.LockByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, database.Translate(err, "failed to lock student")
	}
	return student, nil
}

func (s *ReassignmentService) loadSession(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, exec, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, database.Translate(err, "failed to load session")
	}
	return session, nil
}

func (s *ReassignmentService) notifyStudent(ctx context.Context, request *models.ReassignmentRequest, target *models.Session, template string) {
	if s.notifier == nil {
		return
	}
	student, err := s.students.FindByID(ctx, nil, request.StudentID)
	if err != nil {
		s.logger.Warn("failed to load student for notification", zap.String("student_id", request.StudentID), zap.Error(err))
		return
	}
	data := map[string]string{
		"name":    student.FullName(),
		"day":     dayLabel(target.Day),
		"session": fmt.Sprintf("%s-%s", target.StartTime, target.EndTime),
	}
	if request.Reason != nil {
		data["reason"] = *request.Reason
	}
	if err := s.notifier.Notify(ctx, notify.Message{To: student.Email, Template: template, Data: data}); err != nil {
		s.logger.Warn("failed to queue notification", zap.String("template", template), zap.Error(err))
	}
}
