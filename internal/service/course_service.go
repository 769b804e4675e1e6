package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/weekend-academy-api/internal/authz"
	"github.com/noah-isme/weekend-academy-api/internal/dto"
	"github.com/noah-isme/weekend-academy-api/internal/models"
	"github.com/noah-isme/weekend-academy-api/pkg/database"
	appErrors "github.com/noah-isme/weekend-academy-api/pkg/errors"
)

const activeCoursesCacheKey = "catalog:courses:active"

type courseRepository interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Course, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Course, error)
	ListActive(ctx context.Context) ([]models.Course, error)
	UpdateStatus(ctx context.Context, id string, status models.CourseStatus, updatedAt time.Time) (*models.Course, error)
	SetHeadTeacher(ctx context.Context, exec sqlx.ExtContext, courseID, teacherID string, updatedAt time.Time) error
	CountClasses(ctx context.Context, exec sqlx.ExtContext, courseID string) (int, error)
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type courseTeacherRepository interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Teacher, error)
	LockByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.Teacher, error)
	UpdateRole(ctx context.Context, exec sqlx.ExtContext, id string, courseID *string, role *models.TeacherRole, updatedAt time.Time) error
	CountHeads(ctx context.Context, exec sqlx.ExtContext, courseID string) (int, error)
}

type courseAvailabilityRepository interface {
	AvailabilityByCourse(ctx context.Context, courseID string) ([]models.SessionAvailability, error)
}

// CourseService serves the public catalog and course administration.
type CourseService struct {
	tx          database.TxProvider
	courses     courseRepository
	teachers    courseTeacherRepository
	sessions    courseAvailabilityRepository
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
	cacheTTL    time.Duration
	lockTimeout time.Duration
	now         func() time.Time
}

// NewCourseService constructs the course service.
func NewCourseService(
	tx database.TxProvider,
	courses courseRepository,
	teachers courseTeacherRepository,
	sessions courseAvailabilityRepository,
	cache *CacheService,
	validate *validator.Validate,
	logger *zap.Logger,
	cacheTTL, lockTimeout time.Duration,
) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{
		tx:          tx,
		courses:     courses,
		teachers:    teachers,
		sessions:    sessions,
		cache:       cache,
		validator:   validate,
		logger:      logger,
		cacheTTL:    cacheTTL,
		lockTimeout: lockTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ListActive returns the ACTIVE courses and whether the answer came from cache.
func (s *CourseService) ListActive(ctx context.Context) ([]models.Course, bool, error) {
	var cached []models.Course
	if s.cache.Get(ctx, activeCoursesCacheKey, &cached) {
		return cached, true, nil
	}
	courses, err := s.courses.ListActive(ctx)
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to list courses")
	}
	if courses == nil {
		courses = []models.Course{}
	}
	s.cache.Set(ctx, activeCoursesCacheKey, courses, s.cacheTTL)
	return courses, false, nil
}

// Sessions groups a course's sessions by day with their live availability.
// Availability is read from the ledger on every call. Only ACTIVE courses
// expose their sessions.
func (s *CourseService) Sessions(ctx context.Context, courseID string) (*dto.CourseSessionsResponse, error) {
	course, err := s.findCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course.Status != models.CourseStatusActive {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course is not active")
	}
	items, err := s.sessions.AvailabilityByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load sessions")
	}
	resp := &dto.CourseSessionsResponse{Saturday: []dto.SessionAvailabilityItem{}, Sunday: []dto.SessionAvailabilityItem{}}
	for _, item := range items {
		view := dto.SessionAvailabilityItem{
			ID:        item.SessionID,
			ClassID:   item.ClassID,
			ClassName: item.ClassName,
			Day:       item.Day,
			StartTime: item.StartTime,
			EndTime:   item.EndTime,
			Capacity:  item.Capacity,
			Available: item.DisplayAvailable(),
			IsFull:    item.IsFull(),
		}
		if item.Day == models.DaySaturday {
			resp.Saturday = append(resp.Saturday, view)
		} else {
			resp.Sunday = append(resp.Sunday, view)
		}
	}
	return resp, nil
}

// ReplaceHeadTeacher promotes an ADDITIONAL teacher of the course to HEAD and
// demotes (or detaches) the current head in one transaction. The course is
// left with exactly one head or the change is rolled back.
func (s *CourseService) ReplaceHeadTeacher(ctx context.Context, courseID string, req dto.ReplaceHeadTeacherRequest, actor *models.JWTClaims) (*dto.ReplaceHeadTeacherResponse, error) {
	if !authz.Can(actor, authz.CourseManage) {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid head teacher payload")
	}

	course, err := s.findCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course.HeadTeacherID != nil && *course.HeadTeacherID == req.NewHeadTeacherID {
		return nil, appErrors.Clone(appErrors.ErrConflict, "teacher already heads this course")
	}
	candidate, err := s.teachers.FindByID(ctx, nil, req.NewHeadTeacherID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to load teacher")
	}
	if candidate == nil || !candidate.HasRole(course.ID, models.TeacherRoleAdditional) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher is not an additional teacher of this course")
	}

	resp := &dto.ReplaceHeadTeacherResponse{}
	err = database.WithTx(ctx, s.tx, s.lockTimeout, func(tx *sqlx.Tx) error {
		locked, err := s.courses.LockByID(ctx, tx, course.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "course not found")
			}
			return database.Translate(err, "failed to lock course")
		}

		ids := []string{req.NewHeadTeacherID}
		if locked.HeadTeacherID != nil {
			if *locked.HeadTeacherID == req.NewHeadTeacherID {
				return appErrors.Clone(appErrors.ErrConflict, "teacher already heads this course")
			}
			ids = append(ids, *locked.HeadTeacherID)
		}
		teachers, err := s.teachers.LockByIDs(ctx, tx, ids)
		if err != nil {
			return database.Translate(err, "failed to lock teachers")
		}
		byID := make(map[string]models.Teacher, len(teachers))
		for _, t := range teachers {
			byID[t.ID] = t
		}

		newHead, ok := byID[req.NewHeadTeacherID]
		if !ok || !newHead.HasRole(course.ID, models.TeacherRoleAdditional) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher is not an additional teacher of this course")
		}

		now := s.now()
		if locked.HeadTeacherID != nil {
			oldHead, ok := byID[*locked.HeadTeacherID]
			if !ok {
				return appErrors.Clone(appErrors.ErrNotFound, "current head teacher not found")
			}
			if req.RemoveOldTeacher {
				oldHead.CourseID, oldHead.TeacherRole = nil, nil
			} else {
				additional := models.TeacherRoleAdditional
				oldHead.TeacherRole = &additional
			}
			if err := s.teachers.UpdateRole(ctx, tx, oldHead.ID, oldHead.CourseID, oldHead.TeacherRole, now); err != nil {
				return database.Translate(err, "failed to demote head teacher")
			}
			resp.OldTeacher = oldHead.Summary()
		}

		head := models.TeacherRoleHead
		newHead.TeacherRole = &head
		if err := s.teachers.UpdateRole(ctx, tx, newHead.ID, newHead.CourseID, newHead.TeacherRole, now); err != nil {
			return database.Translate(err, "failed to promote teacher")
		}
		if err := s.courses.SetHeadTeacher(ctx, tx, course.ID, newHead.ID, now); err != nil {
			return database.Translate(err, "failed to update course head")
		}

		heads, err := s.teachers.CountHeads(ctx, tx, course.ID)
		if err != nil {
			return database.Translate(err, "failed to verify head teacher")
		}
		if heads != 1 {
			s.logger.Error("head teacher invariant violated", zap.String("course_id", course.ID), zap.Int("heads", heads))
			return appErrors.Clone(appErrors.ErrInternal, "course must have exactly one head teacher")
		}
		resp.NewTeacher = newHead.Summary()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, activeCoursesCacheKey)
	s.logger.Info("head teacher replaced",
		zap.String("course_id", course.ID), zap.String("old_teacher_id", resp.OldTeacher.ID),
		zap.String("new_teacher_id", resp.NewTeacher.ID), zap.Bool("old_removed", req.RemoveOldTeacher))
	return resp, nil
}

// UpdateStatus changes the course lifecycle state and refreshes the catalog.
func (s *CourseService) UpdateStatus(ctx context.Context, courseID string, req dto.UpdateCourseStatusRequest, actor *models.JWTClaims) (*models.Course, error) {
	if !authz.Can(actor, authz.CourseManage) {
		return nil, appErrors.ErrForbidden
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be ACTIVE, INACTIVE or COMPLETED")
	}
	course, err := s.courses.UpdateStatus(ctx, courseID, req.Status, s.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Internal(err, "failed to update course status")
	}
	s.cache.Invalidate(ctx, activeCoursesCacheKey)
	return course, nil
}

// Delete removes a course that owns no classes.
func (s *CourseService) Delete(ctx context.Context, courseID string, actor *models.JWTClaims) error {
	if !authz.Can(actor, authz.CourseManage) {
		return appErrors.ErrForbidden
	}
	err := database.WithTx(ctx, s.tx, s.lockTimeout, func(tx *sqlx.Tx) error {
		if _, err := s.courses.LockByID(ctx, tx, courseID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "course not found")
			}
			return database.Translate(err, "failed to lock course")
		}
		classes, err := s.courses.CountClasses(ctx, tx, courseID)
		if err != nil {
			return database.Translate(err, "failed to count classes")
		}
		if classes > 0 {
			return appErrors.Clone(appErrors.ErrConflict, "course still has classes")
		}
		if err := s.courses.Delete(ctx, tx, courseID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "course not found")
			}
			if database.IsForeignKeyViolation(err) {
				return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "course is still referenced")
			}
			return database.Translate(err, "failed to delete course")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx, activeCoursesCacheKey)
	s.logger.Info("course deleted", zap.String("course_id", courseID), zap.String("actor_id", actor.UserID))
	return nil
}

func (s *CourseService) findCourse(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Internal(err, "failed to load course")
	}
	return course, nil
}
