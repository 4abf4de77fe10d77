package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/naka-gawa/github-activity-report/internal/domain"
)

var validate = validator.New()

// RunOptions are the command-line options of the run command.
type RunOptions struct {
	Repositories []string `validate:"dive,required"`
	Organization string
	LastDays     int    `validate:"min=1,max=365"`
	Since        string `validate:"omitempty,datetime=2006-01-02"`
	Until        string `validate:"omitempty,datetime=2006-01-02"`
	OutputDir    string `validate:"required"`
	Format       string `validate:"oneof=flat unified"`
	Concurrency  int    `validate:"min=1,max=32"`
	Markdown     bool
	NoPRs        bool
	AI           bool
	PromptDir    string
	Preview      bool
	Sheet        bool
	ClearSheet   bool
	AIUsageFile  string
	PRStatsDir   string
}

// StatsOptions are the command-line options of the stats command.
type StatsOptions struct {
	Repositories []string `validate:"dive,required"`
	Organization string
	SinceDate    string `validate:"required,datetime=2006-01-02"`
	OutputDir    string `validate:"required"`
	Format       string `validate:"oneof=flat unified"`
	Concurrency  int    `validate:"min=1,max=32"`
	NoUpload     bool
	ClearSheet   bool
}

// ValidationError holds every failed option check.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return strings.Join(v.Errors, ", ")
}

// ValidateStruct checks s against its validate tags.
func ValidateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		var message string
		switch fe.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", fe.Field())
		case "oneof":
			message = fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
		case "datetime":
			message = fmt.Sprintf("%s must be a date in YYYY-MM-DD format", fe.Field())
		case "min", "max":
			message = fmt.Sprintf("%s must be %s %s", fe.Field(), map[string]string{"min": ">=", "max": "<="}[fe.Tag()], fe.Param())
		default:
			message = fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
		}
		messages = append(messages, message)
	}
	return &ValidationError{Errors: messages}
}

// QualifyRepositories turns bare repository names into owner/name using org.
// Names that already carry an owner are kept. Blank entries are dropped.
func QualifyRepositories(repos []string, org string) ([]string, error) {
	qualified := make([]string, 0, len(repos))
	seen := make(map[string]struct{}, len(repos))
	for _, repo := range repos {
		repo = strings.TrimSpace(repo)
		if repo == "" {
			continue
		}
		if !strings.Contains(repo, "/") {
			if org == "" {
				return nil, fmt.Errorf("%w: repository %q has no owner; set --org or use owner/name", domain.ErrInvalidWindow, repo)
			}
			repo = org + "/" + repo
		}
		if _, ok := seen[repo]; ok {
			continue
		}
		seen[repo] = struct{}{}
		qualified = append(qualified, repo)
	}
	return qualified, nil
}

// Window builds the collection window of a run. since and until are
// optional YYYY-MM-DD overrides of the lookback; dates are read in loc.
func (o RunOptions) Window(now time.Time, loc *time.Location, repositories []string) (domain.CollectionWindow, error) {
	window := domain.NewLookbackWindow(now, o.LastDays, repositories)
	if o.Since != "" {
		since, err := time.ParseInLocation("2006-01-02", o.Since, loc)
		if err != nil {
			return domain.CollectionWindow{}, fmt.Errorf("%w: since: %w", domain.ErrInvalidWindow, err)
		}
		window.Since = since
	}
	if o.Until != "" {
		until, err := time.ParseInLocation("2006-01-02", o.Until, loc)
		if err != nil {
			return domain.CollectionWindow{}, fmt.Errorf("%w: until: %w", domain.ErrInvalidWindow, err)
		}
		window.Until = until
	}
	return window, nil
}
