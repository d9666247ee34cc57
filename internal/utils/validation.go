package utils

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"medical-dictation-server/internal/apperr"
	"medical-dictation-server/internal/query"
)

var validate = validator.New()

// Validate performs validation on a struct.
func Validate(s interface{}) error {
	return validate.Struct(s)
}

// FormatValidationError formats validation errors into a readable string.
func FormatValidationError(err error) string {
	if errs, ok := err.(validator.ValidationErrors); ok {
		var errorMessages []string
		for _, e := range errs {
			errorMessages = append(errorMessages, e.Error())
		}
		return strings.Join(errorMessages, ", ")
	}
	return err.Error()
}

// BindAndValidate binds the request body to a struct and validates it.
// If validation fails, it sends a BadRequest response and returns false.
func BindAndValidate(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		BadRequest(c, "Invalid request payload: "+err.Error())
		return false
	}
	if err := Validate(obj); err != nil {
		BadRequest(c, "Validation failed: "+FormatValidationError(err))
		return false
	}
	return true
}

// QueryBool reads an optional boolean query parameter. An absent or empty
// parameter yields nil.
func QueryBool(c *gin.Context, name string) (*bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperr.Validation("%s must be a boolean, got %q", name, raw)
	}
	return &v, nil
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apperr.Validation("%s must be a non-negative integer, got %q", name, raw)
	}
	return v, nil
}

// MaxPageLimit is the largest limit a listing request may ask for.
const MaxPageLimit = 1000

// QueryPage reads skip and limit, using defaultLimit when limit is absent.
// The limit must be between 1 and MaxPageLimit.
func QueryPage(c *gin.Context, defaultLimit int) (query.Page, error) {
	skip, err := queryInt(c, "skip", 0)
	if err != nil {
		return query.Page{}, err
	}
	limit, err := queryInt(c, "limit", defaultLimit)
	if err != nil {
		return query.Page{}, err
	}
	if limit < 1 || limit > MaxPageLimit {
		return query.Page{}, apperr.Validation("limit must be between 1 and %d, got %d", MaxPageLimit, limit)
	}
	return query.Page{Skip: skip, Limit: limit}, nil
}

// QueryFacets reads the note_created, validated and treated filters.
func QueryFacets(c *gin.Context) (query.Facets, error) {
	var f query.Facets
	var err error
	if f.NoteCreated, err = QueryBool(c, "note_created"); err != nil {
		return f, err
	}
	if f.Validated, err = QueryBool(c, "validated"); err != nil {
		return f, err
	}
	if f.Treated, err = QueryBool(c, "treated"); err != nil {
		return f, err
	}
	return f, nil
}

// QueryTime reads an optional date, either RFC 3339 or YYYY-MM-DD.
func QueryTime(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, apperr.Validation("%s must be a date, got %q", name, raw)
}

// WantCount reports whether the caller asked for the total instead of the items.
func WantCount(c *gin.Context) bool {
	v, err := strconv.ParseBool(c.Query("count"))
	return err == nil && v
}
