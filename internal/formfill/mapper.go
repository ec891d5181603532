package formfill

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gildigital/autoapply/internal/profile"
)

// Outcome is the terminal result of a mapping attempt.
type Outcome string

const (
	OutcomeReady   Outcome = "ready"
	OutcomeSkipped Outcome = "skipped"
)

// Generator produces free-text answers and option selections. *ai.Chain
// satisfies it.
type Generator interface {
	GenerateAnswer(ctx context.Context, question, resumeText, profileSummary, postingText string) (string, error)
	SelectOption(ctx context.Context, question string, options []string, resumeText, profileSummary, postingText string) (int, error)
}

// ResumeFile is the stored resume document offered to file fields.
type ResumeFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Input carries everything one mapping attempt may draw on. Resume is nil
// when the user has no stored resume.
type Input struct {
	Schema         FormSchema
	Profile        profile.Profile
	Resume         *ResumeFile
	ResumeText     string
	ProfileSummary string
	PostingTitle   string
	PostingCompany string
	PostingText    string
}

// ResumeAttachment is the file assignment within a payload. Content is
// base64-encoded raw bytes.
type ResumeAttachment struct {
	Field       string `json:"field"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     string `json:"content,omitempty"`
}

// Payload is the complete field→value assignment handed to the executor.
type Payload struct {
	Fields map[string]string `json:"fields"`
	Resume *ResumeAttachment `json:"resume,omitempty"`
}

// Result is the outcome of Map. Payload is set only when Outcome is ready;
// Reason explains a skip.
type Result struct {
	Outcome Outcome
	Reason  string
	Payload *Payload
}

// Mapper turns an introspected form schema into an application payload, or
// decides the form cannot be completed.
type Mapper struct {
	gen    Generator
	logger *slog.Logger
}

func NewMapper(gen Generator, logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{gen: gen, logger: logger}
}

// Map runs the full pipeline: feasibility validation, then field assignment.
// A form with an unsatisfiable required field is skipped outright; Map never
// produces a partial payload for one.
func (m *Mapper) Map(ctx context.Context, in Input) Result {
	if len(in.Schema.Fields) == 0 {
		return Result{Outcome: OutcomeSkipped, Reason: "form has no fillable fields"}
	}
	if reason, ok := m.validateFeasibility(in); !ok {
		return Result{Outcome: OutcomeSkipped, Reason: reason}
	}
	return Result{Outcome: OutcomeReady, Payload: m.assignFields(ctx, in)}
}

// validateFeasibility checks every required field up front. Required
// resume-pattern file fields need a stored resume; required contact fields
// need the matching profile value; unrecognized file kinds are tentatively
// accepted (assignment leaves them out); everything else is presumed
// answerable with generation or a template.
func (m *Mapper) validateFeasibility(in Input) (string, bool) {
	for _, f := range in.Schema.Fields {
		if !f.Required {
			continue
		}
		if f.Type == FieldFile {
			if isResumeField(f) && in.Resume == nil {
				return fmt.Sprintf("required field %q needs a resume and none is stored", fieldLabel(f)), false
			}
			continue
		}
		if isContactField(f) {
			if _, ok := lookupProfileValue(f, in.Profile); !ok {
				return fmt.Sprintf("required field %q has no profile value", fieldLabel(f)), false
			}
		}
	}
	return "", true
}

// assignFields fills every field it can, in rule-priority order per field:
// profile lookup, resume attachment, cover letter, choice selection, then
// generated or templated free text for remaining required fields.
func (m *Mapper) assignFields(ctx context.Context, in Input) *Payload {
	payload := &Payload{Fields: make(map[string]string, len(in.Schema.Fields))}

	for _, f := range in.Schema.Fields {
		if v, ok := lookupProfileValue(f, in.Profile); ok {
			payload.Fields[f.Name] = v
			continue
		}

		if f.Type == FieldFile {
			if isResumeField(f) && in.Resume != nil && payload.Resume == nil {
				payload.Resume = &ResumeAttachment{
					Field:       f.Name,
					Filename:    in.Resume.Filename,
					ContentType: in.Resume.ContentType,
					Content:     base64.StdEncoding.EncodeToString(in.Resume.Content),
				}
			}
			// Other file kinds (portfolios, transcripts) are left out.
			continue
		}

		if isCoverLetterField(f) && !f.isChoice() {
			payload.Fields[f.Name] = m.coverLetter(ctx, in)
			continue
		}

		if f.isChoice() {
			if v, ok := m.chooseOption(ctx, f, in); ok {
				payload.Fields[f.Name] = v
			}
			continue
		}

		// Free text. Optional fields with no rule match stay empty rather
		// than receiving filler the applicant never wrote.
		if !f.Required {
			continue
		}
		payload.Fields[f.Name] = m.freeTextAnswer(ctx, f, in)
	}

	return payload
}

func (m *Mapper) coverLetter(ctx context.Context, in Input) string {
	fallback := fallbackCoverLetter(in.Profile.FullName(), in.PostingTitle, in.PostingCompany)
	if m.gen == nil {
		return fallback
	}
	question := "Write a short cover letter for this job application."
	if in.PostingTitle != "" {
		question = fmt.Sprintf("Write a short cover letter applying for the %s position.", in.PostingTitle)
	}
	letter, err := m.gen.GenerateAnswer(ctx, question, in.ResumeText, in.ProfileSummary, in.PostingText)
	if err != nil {
		m.logger.Warn("cover letter generation failed, using template", "error", err)
		return fallback
	}
	return letter
}

// chooseOption picks a value for a select/radio/checkbox field.
// Authorization questions take the most permissive option and are checked
// first: a sponsorship question offering a plain yes/no pair must answer
// "no", not the yes/no default. Remaining yes/no pairs answer yes, and
// anything else is selected by the generator with the first option as the
// last resort. Option-less checkboxes (consent boxes) are ticked only when
// required.
func (m *Mapper) chooseOption(ctx context.Context, f FormField, in Input) (string, bool) {
	if len(f.Options) == 0 {
		if f.Type == FieldCheckbox && f.Required {
			return "yes", true
		}
		return "", false
	}
	if isAuthorizationField(f) {
		if i, ok := pickAuthorizationOption(f); ok {
			return f.Options[i], true
		}
	}
	if isYesNo(f.Options) {
		i, _ := findOption(f.Options, "yes")
		return f.Options[i], true
	}
	if m.gen != nil {
		i, err := m.gen.SelectOption(ctx, fieldLabel(f), f.Options, in.ResumeText, in.ProfileSummary, in.PostingText)
		if err == nil && i >= 0 && i < len(f.Options) {
			return f.Options[i], true
		}
		if err != nil {
			m.logger.Warn("option selection failed, using first option", "field", f.Name, "error", err)
		}
	}
	return f.Options[0], true
}

func (m *Mapper) freeTextAnswer(ctx context.Context, f FormField, in Input) string {
	question := fieldLabel(f)
	if m.gen != nil {
		answer, err := m.gen.GenerateAnswer(ctx, question, in.ResumeText, in.ProfileSummary, in.PostingText)
		if err == nil {
			return answer
		}
		m.logger.Warn("answer generation failed, using canned answer", "field", f.Name, "error", err)
	}
	return cannedAnswer(question)
}

// fieldLabel prefers the human label over the machine name.
func fieldLabel(f FormField) string {
	if l := strings.TrimSpace(f.Label); l != "" {
		return l
	}
	return f.Name
}

// Marshal flattens the payload for persistence: a JSON fields object and a
// JSON attachment descriptor without the file content (the content lives in
// the resume store and is re-attached at submission time).
func (p *Payload) Marshal() (fieldsJSON, resumeMeta string, err error) {
	fields, err := json.Marshal(p.Fields)
	if err != nil {
		return "", "", fmt.Errorf("marshal payload fields: %w", err)
	}
	if p.Resume == nil {
		return string(fields), "", nil
	}
	meta, err := json.Marshal(ResumeAttachment{
		Field:       p.Resume.Field,
		Filename:    p.Resume.Filename,
		ContentType: p.Resume.ContentType,
	})
	if err != nil {
		return "", "", fmt.Errorf("marshal resume meta: %w", err)
	}
	return string(fields), string(meta), nil
}

// UnmarshalPayload reverses Marshal. The attachment, when present, carries
// metadata only; callers re-attach content before submission.
func UnmarshalPayload(fieldsJSON, resumeMeta string) (*Payload, error) {
	p := &Payload{}
	if err := json.Unmarshal([]byte(fieldsJSON), &p.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal payload fields: %w", err)
	}
	if p.Fields == nil {
		p.Fields = make(map[string]string)
	}
	if resumeMeta != "" {
		var att ResumeAttachment
		if err := json.Unmarshal([]byte(resumeMeta), &att); err != nil {
			return nil, fmt.Errorf("unmarshal resume meta: %w", err)
		}
		p.Resume = &att
	}
	return p, nil
}
