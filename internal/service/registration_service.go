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
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/weekend-academy-api/internal/authz"
	"github.com/noah-isme/weekend-academy-api/internal/dto"
	"github.com/noah-isme/weekend-academy-api/internal/models"
	"github.com/noah-isme/weekend-academy-api/internal/notify"
	"github.com/noah-isme/weekend-academy-api/pkg/database"
	appErrors "github.com/noah-isme/weekend-academy-api/pkg/errors"
	"github.com/noah-isme/weekend-academy-api/pkg/logger"
)

type courseReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Course, error)
}

type sessionReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Session, error)
}

type registrationRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, reg *models.Registration) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Registration, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Registration, error)
	HasPendingEmail(ctx context.Context, exec sqlx.ExtContext, email string) (bool, error)
	DeleteClosedByEmail(ctx context.Context, exec sqlx.ExtContext, email string) (int64, error)
	MarkReviewed(ctx context.Context, exec sqlx.ExtContext, id string, status models.RegistrationStatus, reviewerID string, reason *string, reviewedAt time.Time) error
	ExpireCreatedBefore(ctx context.Context, exec sqlx.ExtContext, cutoff time.Time, reviewerID string, reviewedAt time.Time) ([]string, error)
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, int, error)
}

type studentWriter interface {
	EmailExists(ctx context.Context, exec sqlx.ExtContext, email string) (bool, error)
	NextStudentNumber(ctx context.Context, exec sqlx.ExtContext) (int64, error)
	Create(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error
}

type notificationSender interface {
	Notify(ctx context.Context, msg notify.Message) error
}

// RegistrationConfig tunes the registration workflow.
type RegistrationConfig struct {
	StudentNumberPrefix string
	ExpireAfter         time.Duration
	LockTimeout         time.Duration
}

// RegistrationService runs the registration review workflow.
type RegistrationService struct {
	tx            database.TxProvider
	courses       courseReader
	sessions      sessionReader
	registrations registrationRepository
	students      studentWriter
	ledger        *CapacityLedger
	notifier      notificationSender
	metrics       *MetricsService
	validator     *validator.Validate
	logger        *zap.Logger
	config        RegistrationConfig
	now           func() time.Time
}

// NewRegistrationService wires the registration workflow.
func NewRegistrationService(
	tx database.TxProvider,
	courses courseReader,
	sessions sessionReader,
	registrations registrationRepository,
	students studentWriter,
	ledger *CapacityLedger,
	notifier notificationSender,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	config RegistrationConfig,
) *RegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.StudentNumberPrefix == "" {
		config.StudentNumberPrefix = "STU"
	}
	return &RegistrationService{
		tx:            tx,
		courses:       courses,
		sessions:      sessions,
		registrations: registrations,
		students:      students,
		ledger:        ledger,
		notifier:      notifier,
		metrics:       metrics,
		validator:     validate,
		logger:        logger,
		config:        config,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Submit stores a PENDING registration after checking course, sessions, email
// uniqueness and seat availability.
func (s *RegistrationService) Submit(ctx context.Context, req dto.SubmitRegistrationRequest) (*dto.SubmitRegistrationResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Surname = strings.TrimSpace(req.Surname)
	req.FirstName = strings.TrimSpace(req.FirstName)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	course, err := s.courses.FindByID(ctx, nil, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Internal(err, "failed to load course")
	}
	if course.Status != models.CourseStatusActive {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course is not accepting registrations")
	}

	saturday, err := s.loadSessionFor(ctx, req.SaturdaySessionID, course.ID, models.DaySaturday)
	if err != nil {
		return nil, err
	}
	sunday, err := s.loadSessionFor(ctx, req.SundaySessionID, course.ID, models.DaySunday)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash password")
	}

	reg := &models.Registration{
		Surname:           req.Surname,
		FirstName:         req.FirstName,
		LastName:          trimmedPtr(req.LastName),
		Email:             req.Email,
		PhoneNumber:       trimmedPtr(req.PhoneNumber),
		CourseID:          course.ID,
		SaturdaySessionID: saturday.ID,
		SundaySessionID:   sunday.ID,
		PasswordHash:      string(hash),
		PaymentReceiptURL: strings.TrimSpace(req.PaymentReceiptURL),
		PaymentReceiptNo:  strings.TrimSpace(req.PaymentReceiptNo),
		PhotoURL:          trimmedPtr(req.PhotoURL),
		Status:            models.RegistrationPending,
		CreatedAt:         s.now(),
	}

	err = database.WithTx(ctx, s.tx, s.config.LockTimeout, func(tx *sqlx.Tx) error {
		if err := s.ensureEmailAvailable(ctx, tx, reg.Email); err != nil {
			return err
		}
		if _, err := s.registrations.DeleteClosedByEmail(ctx, tx, reg.Email); err != nil {
			return database.Translate(err, "failed to clear previous registrations")
		}
		if err := s.ledger.Lock(ctx, tx, saturday.ID, sunday.ID); err != nil {
			return database.Translate(err, "failed to lock sessions")
		}
		for _, id := range []string{saturday.ID, sunday.ID} {
			if _, err := s.ledger.Require(ctx, tx, id, 1, "submit"); err != nil {
				return database.Translate(err, "failed to read session availability")
			}
		}
		if err := s.registrations.Create(ctx, tx, reg); err != nil {
			if database.IsUniqueViolation(err) {
				return appErrors.Wrap(err, appErrors.ErrEmailExists.Code, appErrors.ErrEmailExists.Status, "a registration for this email is already pending")
			}
			return database.Translate(err, "failed to store registration")
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordRegistration("submit_failed", 1)
		return nil, err
	}

	s.metrics.RecordRegistration("submitted", 1)
	s.notify(ctx, notify.Message{
		To:       reg.Email,
		Template: notify.TemplateRegistrationReceived,
		Data:     map[string]string{"name": reg.FullName(), "course": course.Name, "registrationId": reg.ID},
	})
	logger.For(ctx, s.logger).Info("registration submitted", zap.String("registration_id", reg.ID), zap.String("course_id", course.ID))

	return &dto.SubmitRegistrationResponse{
		RegistrationID: reg.ID,
		Email:          reg.Email,
		Sessions:       dto.RegisteredSessions{Saturday: *saturday, Sunday: *sunday},
		SubmittedAt:    reg.CreatedAt,
	}, nil
}

func (s *RegistrationService) loadSessionFor(ctx context.Context, sessionID, courseID string, day models.Day) (*models.Session, error) {
	label := dayLabel(day)
	session, err := s.sessions.FindByID(ctx, nil, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s session not found", label))
		}
		return nil, appErrors.Internal(err, "failed to load session")
	}
	if session.CourseID != courseID {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s session does not belong to the course", label))
	}
	if session.Day != day {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s session must run on %s", label, strings.ToLower(string(day))))
	}
	return session, nil
}

func (s *RegistrationService) ensureEmailAvailable(ctx context.Context, exec sqlx.ExtContext, email string) error {
	taken, err := s.students.EmailExists(ctx, exec, email)
	if err != nil {
		return database.Translate(err, "failed to check student email")
	}
	if taken {
		return appErrors.Clone(appErrors.ErrEmailExists, "Email already exists")
	}
	pending, err := s.registrations.HasPendingEmail(ctx, exec, email)
	if err != nil {
		return database.Translate(err, "failed to check pending registrations")
	}
	if pending {
		return appErrors.Clone(appErrors.ErrEmailExists, "a registration for this email is already pending")
	}
	return nil
}

// Approve turns a PENDING registration into a student.
func (s *RegistrationService) Approve(ctx context.Context, registrationID string, actor *models.JWTClaims) (*dto.ApproveRegistrationResponse, error) {
	if !authz.Can(actor, authz.RegistrationApprove) {
		return nil, appErrors.ErrForbidden
	}

	var (
		result *dto.ApproveRegistrationResponse
		reg    *models.Registration
	)
	err := database.WithTx(ctx, s.tx, s.config.LockTimeout, func(tx *sqlx.Tx) error {
		var err error
		reg, result, err = s.approveOne(ctx, tx, registrationID, actor)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordRegistration("approved", 1)
	s.notifyApproved(ctx, reg, result.StudentNumber)
	logger.For(ctx, s.logger).Info("registration approved",
		zap.String("registration_id", reg.ID), zap.String("student_id", result.StudentID), zap.String("actor_id", actor.UserID))
	return result, nil
}

// approveOne runs the approval steps on an open transaction.
func (s *RegistrationService) approveOne(ctx context.Context, tx *sqlx.Tx, registrationID string, actor *models.JWTClaims) (*models.Registration, *dto.ApproveRegistrationResponse, error) {
	reg, err := s.registrations.LockByID(ctx, tx, registrationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, nil, database.Translate(err, "failed to load registration")
	}
	if reg.Status != models.RegistrationPending {
		return nil, nil, appErrors.Clone(appErrors.ErrAlreadyProcessed, fmt.Sprintf("registration already %s", strings.ToLower(string(reg.Status))))
	}
	if !authz.InCourse(actor, reg.CourseID) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "registration belongs to another course")
	}

	if err := s.ledger.Lock(ctx, tx, reg.SaturdaySessionID, reg.SundaySessionID); err != nil {
		return nil, nil, database.Translate(err, "failed to lock sessions")
	}
	var saturday *models.SessionAvailability
	for _, id := range []string{reg.SaturdaySessionID, reg.SundaySessionID} {
		item, err := s.ledger.Require(ctx, tx, id, 0, "approve")
		if err != nil {
			return nil, nil, database.Translate(err, "failed to read session availability")
		}
		if id == reg.SaturdaySessionID {
			saturday = item
		}
	}

	taken, err := s.students.EmailExists(ctx, tx, reg.Email)
	if err != nil {
		return nil, nil, database.Translate(err, "failed to check student email")
	}
	if taken {
		return nil, nil, appErrors.Clone(appErrors.ErrEmailExists, "Email already exists")
	}

	seq, err := s.students.NextStudentNumber(ctx, tx)
	if err != nil {
		return nil, nil, database.Translate(err, "failed to allocate student number")
	}

	student := &models.Student{
		StudentNumber:     formatStudentNumber(s.config.StudentNumberPrefix, seq),
		Surname:           reg.Surname,
		FirstName:         reg.FirstName,
		LastName:          reg.LastName,
		Email:             reg.Email,
		PhoneNumber:       reg.PhoneNumber,
		PasswordHash:      reg.PasswordHash,
		ClassID:           saturday.ClassID,
		SaturdaySessionID: reg.SaturdaySessionID,
		SundaySessionID:   reg.SundaySessionID,
		PhotoURL:          reg.PhotoURL,
	}
	if err := s.students.Create(ctx, tx, student); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrEmailExists.Code, appErrors.ErrEmailExists.Status, "Email already exists")
		}
		return nil, nil, database.Translate(err, "failed to create student")
	}

	if err := s.registrations.MarkReviewed(ctx, tx, reg.ID, models.RegistrationApproved, actor.UserID, nil, s.now()); err != nil {
		return nil, nil, database.Translate(err, "failed to update registration")
	}

	return reg, &dto.ApproveRegistrationResponse{RegistrationID: reg.ID, StudentID: student.ID, StudentNumber: student.StudentNumber}, nil
}

// BulkApprove approves many registrations in one transaction. Each item runs
// in its own savepoint so one failure does not undo the others.
func (s *RegistrationService) BulkApprove(ctx context.Context, req dto.BulkApproveRequest, actor *models.JWTClaims) (*dto.BulkApproveResponse, error) {
	if !authz.Can(actor, authz.RegistrationBulkApprove) {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk approve payload")
	}

	resp := &dto.BulkApproveResponse{Approved: []dto.ApproveRegistrationResponse{}, Failed: []dto.FailedItem{}}
	approvedRegs := make([]*models.Registration, 0, len(req.RegistrationIDs))

	err := database.WithTx(ctx, s.tx, s.config.LockTimeout, func(tx *sqlx.Tx) error {
		seen := make(map[string]struct{}, len(req.RegistrationIDs))
		for i, id := range req.RegistrationIDs {
			if _, dup := seen[id]; dup {
				resp.Failed = append(resp.Failed, dto.FailedItem{ID: id, Reason: "Duplicate registration id"})
				continue
			}
			seen[id] = struct{}{}

			var (
				reg    *models.Registration
				result *dto.ApproveRegistrationResponse
			)
			itemErr, err := database.WithSavepoint(ctx, tx, fmt.Sprintf("bulk_approve_%d", i), func() error {
				var err error
				reg, result, err = s.approveOne(ctx, tx, id, actor)
				return err
			})
			if err != nil {
				return database.Translate(err, "failed to manage savepoint")
			}
			if itemErr != nil {
				resp.Failed = append(resp.Failed, dto.FailedItem{ID: id, Reason: failureReason(itemErr)})
				continue
			}
			resp.Approved = append(resp.Approved, *result)
			approvedRegs = append(approvedRegs, reg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordRegistration("approved", len(resp.Approved))
	for i, reg := range approvedRegs {
		s.notifyApproved(ctx, reg, resp.Approved[i].StudentNumber)
	}
	s.logger.Info("bulk approve finished",
		zap.Int("approved", len(resp.Approved)), zap.Int("failed", len(resp.Failed)), zap.String("actor_id", actor.UserID))
	return resp, nil
}

// Reject closes a PENDING registration with a mandatory reason.
func (s *RegistrationService) Reject(ctx context.Context, registrationID, reason string, actor *models.JWTClaims) (*models.Registration, error) {
	if !authz.Can(actor, authz.RegistrationReject) {
		return nil, appErrors.ErrForbidden
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rejection reason is required")
	}

	var (
		reg    *models.Registration
		course *models.Course
	)
	err := database.WithTx(ctx, s.tx, s.config.LockTimeout, func(tx *sqlx.Tx) error {
		var err error
		reg, err = s.registrations.LockByID(ctx, tx, registrationID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "registration not found")
			}
			return database.Translate(err, "failed to load registration")
		}
		if reg.Status != models.RegistrationPending {
			return appErrors.Clone(appErrors.ErrAlreadyProcessed, fmt.Sprintf("registration already %s", strings.ToLower(string(reg.Status))))
		}
		if !authz.InCourse(actor, reg.CourseID) {
			return appErrors.Clone(appErrors.ErrForbidden, "registration belongs to another course")
		}
		reviewedAt := s.now()
		if err := s.registrations.MarkReviewed(ctx, tx, reg.ID, models.RegistrationRejected, actor.UserID, &reason, reviewedAt); err != nil {
			return database.Translate(err, "failed to reject registration")
		}
		reg.Status = models.RegistrationRejected
		reg.RejectionReason = &reason
		reg.ReviewedByID = &actor.UserID
		reg.ReviewedAt = &reviewedAt

		course, err = s.courses.FindByID(ctx, tx, reg.CourseID)
		if err != nil {
			return database.Translate(err, "failed to load course")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordRegistration("rejected", 1)
	s.notify(ctx, notify.Message{
		To:       reg.Email,
		Template: notify.TemplateRegistrationRejected,
		Data:     map[string]string{"name": reg.FullName(), "course": course.Name, "reason": reason},
	})
	return reg, nil
}

// ExpireStale marks PENDING registrations older than the threshold as EXPIRED.
// The threshold comes from olderThan or the configured default; with neither
// the call is rejected.
func (s *RegistrationService) ExpireStale(ctx context.Context, req dto.ExpireRegistrationsRequest, actor *models.JWTClaims) (*dto.ExpireRegistrationsResponse, error) {
	if !authz.Can(actor, authz.RegistrationExpire) {
		return nil, appErrors.ErrForbidden
	}
	threshold := s.config.ExpireAfter
	if raw := strings.TrimSpace(req.OlderThan); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "olderThan must be a positive duration such as 72h")
		}
		threshold = d
	}
	if threshold <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no expiry threshold configured; pass olderThan")
	}

	now := s.now()
	var ids []string
	err := database.WithTx(ctx, s.tx, s.config.LockTimeout, func(tx *sqlx.Tx) error {
		var err error
		ids, err = s.registrations.ExpireCreatedBefore(ctx, tx, now.Add(-threshold), actor.UserID, now)
		return database.Translate(err, "failed to expire registrations")
	})
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	s.metrics.RecordRegistration("expired", len(ids))
	s.logger.Info("registrations expired", zap.Int("count", len(ids)), zap.Duration("older_than", threshold))
	return &dto.ExpireRegistrationsResponse{Expired: len(ids), RegistrationIDs: ids}, nil
}

// List returns registrations visible to actor. Teachers only see their course.
func (s *RegistrationService) List(ctx context.Context, filter models.RegistrationFilter, actor *models.JWTClaims) ([]models.Registration, *models.Pagination, error) {
	if !authz.Can(actor, authz.RegistrationRead) {
		return nil, nil, appErrors.ErrForbidden
	}
	if !actor.IsAdmin() {
		filter.CourseID = actor.Course()
	}
	if filter.Status != "" {
		switch filter.Status {
		case models.RegistrationPending, models.RegistrationApproved, models.RegistrationRejected, models.RegistrationExpired:
		default:
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown registration status")
		}
	}
	items, total, err := s.registrations.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list registrations")
	}
	page, size, _ := models.NormalizePage(filter.Page, filter.PageSize)
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one registration within the actor's course scope.
func (s *RegistrationService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Registration, error) {
	if !authz.Can(actor, authz.RegistrationRead) {
		return nil, appErrors.ErrForbidden
	}
	reg, err := s.registrations.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Internal(err, "failed to load registration")
	}
	if !authz.InCourse(actor, reg.CourseID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
	}
	return reg, nil
}

func (s *RegistrationService) notifyApproved(ctx context.Context, reg *models.Registration, studentNumber string) {
	data := map[string]string{"name": reg.FullName(), "studentNumber": studentNumber}
	if course, err := s.courses.FindByID(ctx, nil, reg.CourseID); err == nil {
		data["course"] = course.Name
	}
	s.notify(ctx, notify.Message{To: reg.Email, Template: notify.TemplateRegistrationApproved, Data: data})
}

func (s *RegistrationService) notify(ctx context.Context, msg notify.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.logger.Warn("failed to queue notification", zap.String("template", msg.Template), zap.Error(err))
	}
}

func formatStudentNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s-%05d", prefix, seq)
}

func failureReason(err error) string {
	appErr := appErrors.FromError(err)
	if appErr.Status >= 500 {
		return "internal error"
	}
	return appErr.Message
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
