package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"medical-dictation-server/internal/dictation"
	"medical-dictation-server/internal/middleware"
	"medical-dictation-server/internal/models"
	"medical-dictation-server/internal/utils"
)

const defaultUserLimit = 100

// UserHandler handles user administration and patient registration.
type UserHandler struct {
	DB      *gorm.DB
	Service *dictation.Service
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(db *gorm.DB, svc *dictation.Service) *UserHandler {
	return &UserHandler{DB: db, Service: svc}
}

// CreateUserRequest represents the request body for creating a user by an admin.
type CreateUserRequest struct {
	FullName    string     `json:"fullName" binding:"required"`
	Email       string     `json:"email" binding:"required,email"`
	Password    string     `json:"password" binding:"required,min=8"`
	Role        string     `json:"role" binding:"required,oneof=doctor patient manager assistant admin"`
	BirthDate   *time.Time `json:"birthDate"`
	IsActive    *bool      `json:"isActive"`
	IsSuperuser bool       `json:"isSuperuser"`
}

// CreateUser handles creating a new user (admin).
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var count int64
	if err := h.DB.Model(&models.User{}).Where("email = ?", req.Email).Count(&count).Error; err != nil {
		utils.InternalServerError(c, "Database error: "+err.Error())
		return
	}
	if count > 0 {
		utils.Conflict(c, "User with this email already exists")
		return
	}

	user := models.User{
		FullName:    req.FullName,
		Email:       req.Email,
		Role:        models.Role(req.Role),
		BirthDate:   req.BirthDate,
		IsActive:    lo.FromPtrOr(req.IsActive, true),
		IsSuperuser: req.IsSuperuser,
	}
	if err := user.SetPassword(req.Password); err != nil {
		utils.InternalServerError(c, "Failed to hash password: "+err.Error())
		return
	}

	if err := h.DB.Create(&user).Error; err != nil {
		utils.InternalServerError(c, "Failed to create user: "+err.Error())
		return
	}

	utils.Created(c, "User created successfully", user.Sanitize())
}

// GetUsers lists users, optionally filtered by role (admin).
func (h *UserHandler) GetUsers(c *gin.Context) {
	q := h.DB.Model(&models.User{})
	if raw := c.Query("role"); raw != "" {
		role, err := models.ParseRole(raw)
		if err != nil {
			utils.BadRequest(c, err.Error())
			return
		}
		q = q.Where("role = ?", role)
	}

	if utils.WantCount(c) {
		var total int64
		if err := q.Count(&total).Error; err != nil {
			utils.InternalServerError(c, "Failed to count users: "+err.Error())
			return
		}
		utils.Success(c, "Users counted successfully", gin.H{"count": total})
		return
	}

	page, err := utils.QueryPage(c, defaultUserLimit)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	if page.Skip > 0 {
		q = q.Offset(page.Skip)
	}
	if page.Limit > 0 {
		q = q.Limit(page.Limit)
	}

	var users []models.User
	if err := q.Order("full_name, id").Find(&users).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch users: "+err.Error())
		return
	}

	utils.Success(c, "Users fetched successfully", lo.Map(users, func(u models.User, _ int) models.UserSanitized {
		return u.Sanitize()
	}))
}

func (h *UserHandler) findUser(c *gin.Context) (*models.User, bool) {
	var user models.User
	if err := h.DB.First(&user, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return nil, false
	}
	return &user, true
}

// GetUserByID handles fetching a single user by ID (admin).
func (h *UserHandler) GetUserByID(c *gin.Context) {
	user, ok := h.findUser(c)
	if !ok {
		return
	}
	utils.Success(c, "User fetched successfully", user.Sanitize())
}

// UpdateUserRequest represents the request body for updating a user by an admin.
type UpdateUserRequest struct {
	FullName    *string    `json:"fullName" validate:"omitempty,min=1"`
	Email       *string    `json:"email" validate:"omitempty,email"`
	Password    *string    `json:"password" validate:"omitempty,min=8"`
	Role        *string    `json:"role" validate:"omitempty,oneof=doctor patient manager assistant admin"`
	BirthDate   *time.Time `json:"birthDate"`
	IsActive    *bool      `json:"isActive"`
	IsSuperuser *bool      `json:"isSuperuser"`
}

// UpdateUser handles updating a user by ID (admin).
func (h *UserHandler) UpdateUser(c *gin.Context) {
	var req UpdateUserRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	user, ok := h.findUser(c)
	if !ok {
		return
	}

	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.Email != nil && *req.Email != user.Email {
		var count int64
		if err := h.DB.Model(&models.User{}).Where("email = ? AND id <> ?", *req.Email, user.ID).Count(&count).Error; err != nil {
			utils.InternalServerError(c, "Database error checking email: "+err.Error())
			return
		}
		if count > 0 {
			utils.Conflict(c, "New email is already in use")
			return
		}
		user.Email = *req.Email
	}
	if req.Password != nil {
		if err := user.SetPassword(*req.Password); err != nil {
			utils.InternalServerError(c, "Failed to hash password: "+err.Error())
			return
		}
	}
	if req.Role != nil {
		user.Role = models.Role(*req.Role)
	}
	if req.BirthDate != nil {
		user.BirthDate = req.BirthDate
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	if req.IsSuperuser != nil {
		user.IsSuperuser = *req.IsSuperuser
	}

	if err := h.DB.Save(user).Error; err != nil {
		utils.InternalServerError(c, "Failed to update user: "+err.Error())
		return
	}

	utils.Success(c, "User updated successfully", user.Sanitize())
}

// DeleteUser deletes a user and their refresh tokens (admin).
func (h *UserHandler) DeleteUser(c *gin.Context) {
	user, ok := h.findUser(c)
	if !ok {
		return
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		return tx.Delete(user).Error
	})
	if err != nil {
		utils.InternalServerError(c, "Failed to delete user: "+err.Error())
		return
	}

	utils.Success(c, "User deleted successfully", nil)
}

// PatientRequest is the body of a patient registration by a doctor.
type PatientRequest struct {
	DoctorID  string     `json:"doctorId"`
	FullName  string     `json:"fullName" binding:"required"`
	Email     string     `json:"email" validate:"omitempty,email"`
	Password  string     `json:"password" validate:"omitempty,min=8"`
	BirthDate *time.Time `json:"birthDate"`
}

// CreatePatient registers an inactive patient for the calling doctor.
func (h *UserHandler) CreatePatient(c *gin.Context) {
	var req PatientRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	actor, _ := middleware.CurrentActor(c)

	patient, err := h.Service.CreatePatient(c.Request.Context(), actor, dictation.PatientInput{
		DoctorID:  req.DoctorID,
		FullName:  req.FullName,
		Email:     req.Email,
		Password:  req.Password,
		BirthDate: req.BirthDate,
	})
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Created(c, "Patient created successfully", patient.Sanitize())
}

// PatientUpdateRequest is the body of a patient update.
type PatientUpdateRequest struct {
	FullName  *string    `json:"fullName"`
	Email     *string    `json:"email" validate:"omitempty,email"`
	BirthDate *time.Time `json:"birthDate"`
}

// UpdatePatient edits a patient on behalf of one of their doctors.
func (h *UserHandler) UpdatePatient(c *gin.Context) {
	var req PatientUpdateRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	actor, _ := middleware.CurrentActor(c)

	patient, err := h.Service.UpdatePatient(c.Request.Context(), actor, c.Param("id"), dictation.PatientUpdate{
		FullName:  req.FullName,
		Email:     req.Email,
		BirthDate: req.BirthDate,
	})
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Patient updated successfully", patient.Sanitize())
}

// GetPatient returns the patient record or its summary, depending on the caller.
func (h *UserHandler) GetPatient(c *gin.Context) {
	actor, _ := middleware.CurrentActor(c)
	view, err := h.Service.GetPatient(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.Success(c, "Patient fetched successfully", view)
}
