package http

import (
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/landbridge/contracts-service/internal/model"
	"github.com/landbridge/contracts-service/internal/service"
)

type createContractRequest struct {
	Kind           string  `json:"kind" binding:"required"`
	ClientID       uint    `json:"client_id" binding:"required"`
	Name           string  `json:"name" binding:"required"`
	EngagementType string  `json:"engagement_type"`
	ParentMSAID    *uint   `json:"parent_msa_id"`
	ProjectName    string  `json:"project_name"`
	Scope          string  `json:"scope"`
	EffectiveStart string  `json:"effective_start" binding:"required"`
	EffectiveEnd   string  `json:"effective_end" binding:"required"`
	Value          float64 `json:"value"`
	Currency       string  `json:"currency"`
	PaymentTerms   string  `json:"payment_terms"`
	InvoicingCycle string  `json:"invoicing_cycle"`
	BillingDay     string  `json:"billing_day"`
	TaxWithholding string  `json:"tax_withholding"`
	IPOwnership    string  `json:"ip_ownership"`
	GoverningLaw   string  `json:"governing_law"`
}

func (r createContractRequest) toInput() (service.CreateContractInput, error) {
	start, err := parseDate(r.EffectiveStart)
	if err != nil {
		return service.CreateContractInput{}, fmt.Errorf("%w: invalid effective_start", service.ErrInvalidInput)
	}
	end, err := parseDate(r.EffectiveEnd)
	if err != nil {
		return service.CreateContractInput{}, fmt.Errorf("%w: invalid effective_end", service.ErrInvalidInput)
	}
	return service.CreateContractInput{
		Kind:           model.ContractKind(strings.ToUpper(strings.TrimSpace(r.Kind))),
		ClientID:       r.ClientID,
		Name:           r.Name,
		EngagementType: model.EngagementType(strings.ToUpper(strings.TrimSpace(r.EngagementType))),
		ParentMSAID:    r.ParentMSAID,
		ProjectName:    r.ProjectName,
		Scope:          r.Scope,
		EffectiveStart: start,
		EffectiveEnd:   end,
		Value:          r.Value,
		Currency:       r.Currency,
		PaymentTerms:   r.PaymentTerms,
		InvoicingCycle: r.InvoicingCycle,
		BillingDay:     r.BillingDay,
		TaxWithholding: r.TaxWithholding,
		IPOwnership:    r.IPOwnership,
		GoverningLaw:   r.GoverningLaw,
	}, nil
}

type updateContractRequest struct {
	Name           *string  `json:"name"`
	Scope          *string  `json:"scope"`
	EffectiveStart *string  `json:"effective_start"`
	EffectiveEnd   *string  `json:"effective_end"`
	Value          *float64 `json:"value"`
	Currency       *string  `json:"currency"`
	PaymentTerms   *string  `json:"payment_terms"`
	InvoicingCycle *string  `json:"invoicing_cycle"`
	BillingDay     *string  `json:"billing_day"`
	TaxWithholding *string  `json:"tax_withholding"`
	IPOwnership    *string  `json:"ip_ownership"`
	GoverningLaw   *string  `json:"governing_law"`

	Milestones []milestoneRequest  `json:"milestones"`
	Engineers  []engineerRequest   `json:"engineers"`
	Billing    []billingRowRequest `json:"billing"`
}

func (r updateContractRequest) toInput() (service.UpdateContractInput, error) {
	input := service.UpdateContractInput{
		Name:           r.Name,
		Scope:          r.Scope,
		Value:          r.Value,
		Currency:       r.Currency,
		PaymentTerms:   r.PaymentTerms,
		InvoicingCycle: r.InvoicingCycle,
		BillingDay:     r.BillingDay,
		TaxWithholding: r.TaxWithholding,
		IPOwnership:    r.IPOwnership,
		GoverningLaw:   r.GoverningLaw,
	}

	var err error
	if input.EffectiveStart, err = parseOptionalDate(r.EffectiveStart); err != nil {
		return input, fmt.Errorf("%w: invalid effective_start", service.ErrInvalidInput)
	}
	if input.EffectiveEnd, err = parseOptionalDate(r.EffectiveEnd); err != nil {
		return input, fmt.Errorf("%w: invalid effective_end", service.ErrInvalidInput)
	}

	if r.Milestones != nil {
		input.Milestones = make([]model.Milestone, 0, len(r.Milestones))
		for _, m := range r.Milestones {
			row, err := m.toModel()
			if err != nil {
				return input, err
			}
			input.Milestones = append(input.Milestones, row)
		}
	}
	if r.Engineers != nil {
		input.Engineers = make([]model.EngagedEngineer, 0, len(r.Engineers))
		for _, e := range r.Engineers {
			row, err := e.toModel()
			if err != nil {
				return input, err
			}
			input.Engineers = append(input.Engineers, row)
		}
	}
	if r.Billing != nil {
		input.Billing = make([]model.BillingDetail, 0, len(r.Billing))
		for _, b := range r.Billing {
			row, err := b.toModel()
			if err != nil {
				return input, err
			}
			input.Billing = append(input.Billing, row)
		}
	}
	return input, nil
}

type milestoneRequest struct {
	Name              string  `json:"name" binding:"required"`
	PaymentPercentage float64 `json:"payment_percentage"`
	PlannedEnd        string  `json:"planned_end" binding:"required"`
	DeliveryNote      string  `json:"delivery_note"`
}

func (r milestoneRequest) toModel() (model.Milestone, error) {
	planned, err := parseDate(r.PlannedEnd)
	if err != nil {
		return model.Milestone{}, fmt.Errorf("%w: invalid planned_end on milestone %q", service.ErrInvalidInput, r.Name)
	}
	return model.Milestone{
		Name:              r.Name,
		PaymentPercentage: r.PaymentPercentage,
		PlannedEnd:        planned,
		DeliveryNote:      r.DeliveryNote,
	}, nil
}

type engineerRequest struct {
	Role          string  `json:"role" binding:"required"`
	Level         string  `json:"level"`
	BillingType   string  `json:"billing_type" binding:"required"`
	Rating        float64 `json:"rating"`
	MonthlySalary float64 `json:"monthly_salary"`
	HourlyRate    float64 `json:"hourly_rate"`
	Hours         float64 `json:"hours"`
	StartDate     string  `json:"start_date" binding:"required"`
	EndDate       *string `json:"end_date"`
}

func (r engineerRequest) toModel() (model.EngagedEngineer, error) {
	start, err := parseDate(r.StartDate)
	if err != nil {
		return model.EngagedEngineer{}, fmt.Errorf("%w: invalid start_date on engineer %q", service.ErrInvalidInput, r.Role)
	}
	end, err := parseOptionalDate(r.EndDate)
	if err != nil {
		return model.EngagedEngineer{}, fmt.Errorf("%w: invalid end_date on engineer %q", service.ErrInvalidInput, r.Role)
	}
	return model.EngagedEngineer{
		Role:          r.Role,
		Level:         r.Level,
		BillingType:   model.BillingType(strings.ToUpper(strings.TrimSpace(r.BillingType))),
		Rating:        r.Rating,
		MonthlySalary: r.MonthlySalary,
		HourlyRate:    r.HourlyRate,
		Hours:         r.Hours,
		StartDate:     start,
		EndDate:       end,
	}, nil
}

type billingRowRequest struct {
	BillingName string   `json:"billing_name" binding:"required"`
	Milestone   string   `json:"milestone"`
	Percentage  *float64 `json:"percentage"`
	PaymentDate string   `json:"payment_date" binding:"required"`
	Amount      float64  `json:"amount"`
	Note        string   `json:"note"`
}

func (r billingRowRequest) toModel() (model.BillingDetail, error) {
	date, err := parseDate(r.PaymentDate)
	if err != nil {
		return model.BillingDetail{}, fmt.Errorf("%w: invalid payment_date on row %q", service.ErrInvalidInput, r.BillingName)
	}
	return model.BillingDetail{
		BillingName: r.BillingName,
		Milestone:   r.Milestone,
		Percentage:  r.Percentage,
		PaymentDate: date,
		Amount:      r.Amount,
		Note:        r.Note,
	}, nil
}

type changeRequestRequest struct {
	Type           string   `json:"type"`
	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	Reason         string   `json:"reason"`
	EffectiveFrom  string   `json:"effective_from"`
	EffectiveUntil *string  `json:"effective_until"`
	DevHours       *int     `json:"dev_hours"`
	TestHours      *int     `json:"test_hours"`
	NewEndDate     *string  `json:"new_end_date"`
	DelayDays      *int     `json:"delay_days"`
	AdditionalCost *float64 `json:"additional_cost"`

	ResourceDeltas []resourceDeltaRequest `json:"resource_deltas"`
	BillingDeltas  []billingDeltaRequest  `json:"billing_deltas"`
}

func (r changeRequestRequest) toInput() (service.ChangeRequestInput, error) {
	input := service.ChangeRequestInput{
		Type:           model.ChangeRequestType(strings.ToUpper(strings.TrimSpace(r.Type))),
		Title:          r.Title,
		Summary:        r.Summary,
		Reason:         r.Reason,
		DevHours:       r.DevHours,
		TestHours:      r.TestHours,
		DelayDays:      r.DelayDays,
		AdditionalCost: r.AdditionalCost,
	}

	var err error
	if r.EffectiveFrom != "" {
		if input.EffectiveFrom, err = parseDate(r.EffectiveFrom); err != nil {
			return input, fmt.Errorf("%w: invalid effective_from", service.ErrInvalidInput)
		}
	}
	if input.EffectiveUntil, err = parseOptionalDate(r.EffectiveUntil); err != nil {
		return input, fmt.Errorf("%w: invalid effective_until", service.ErrInvalidInput)
	}
	if input.NewEndDate, err = parseOptionalDate(r.NewEndDate); err != nil {
		return input, fmt.Errorf("%w: invalid new_end_date", service.ErrInvalidInput)
	}

	if r.ResourceDeltas != nil {
		input.ResourceDeltas = make([]model.ResourceDelta, 0, len(r.ResourceDeltas))
		for i, d := range r.ResourceDeltas {
			row, err := d.toModel()
			if err != nil {
				return input, fmt.Errorf("%w: resource delta %d: %v", service.ErrInvalidInput, i, err)
			}
			input.ResourceDeltas = append(input.ResourceDeltas, row)
		}
	}
	if r.BillingDeltas != nil {
		input.BillingDeltas = make([]model.BillingDelta, 0, len(r.BillingDeltas))
		for i, d := range r.BillingDeltas {
			row, err := d.toModel()
			if err != nil {
				return input, fmt.Errorf("%w: billing delta %d: %v", service.ErrInvalidInput, i, err)
			}
			input.BillingDeltas = append(input.BillingDeltas, row)
		}
	}
	return input, nil
}

type resourceDeltaRequest struct {
	Action      string `json:"action" binding:"required"`
	EngineerID  *uint  `json:"engineer_id"`
	Role        string `json:"role"`
	Level       string `json:"level"`
	BillingType string `json:"billing_type"`

	RatingOld *float64 `json:"rating_old"`
	RatingNew *float64 `json:"rating_new"`
	RateOld   *float64 `json:"rate_old"`
	RateNew   *float64 `json:"rate_new"`
	HoursOld  *float64 `json:"hours_old"`
	HoursNew  *float64 `json:"hours_new"`

	StartDateOld *string `json:"start_date_old"`
	StartDateNew *string `json:"start_date_new"`
	EndDateOld   *string `json:"end_date_old"`
	EndDateNew   *string `json:"end_date_new"`

	EffectiveFrom string `json:"effective_from"`
}

func (r resourceDeltaRequest) toModel() (model.ResourceDelta, error) {
	action := model.ResourceAction(strings.ToUpper(strings.TrimSpace(r.Action)))
	switch action {
	case model.ResourceActionAdd, model.ResourceActionRemove, model.ResourceActionModify:
	default:
		return model.ResourceDelta{}, fmt.Errorf("unknown action %q", r.Action)
	}

	row := model.ResourceDelta{
		Action:      action,
		EngineerID:  r.EngineerID,
		Role:        r.Role,
		Level:       r.Level,
		BillingType: model.BillingType(strings.ToUpper(strings.TrimSpace(r.BillingType))),
		RatingOld:   r.RatingOld,
		RatingNew:   r.RatingNew,
		RateOld:     r.RateOld,
		RateNew:     r.RateNew,
		HoursOld:    r.HoursOld,
		HoursNew:    r.HoursNew,
	}

	var err error
	if row.StartDateOld, err = parseOptionalDate(r.StartDateOld); err != nil {
		return row, fmt.Errorf("invalid start_date_old")
	}
	if row.StartDateNew, err = parseOptionalDate(r.StartDateNew); err != nil {
		return row, fmt.Errorf("invalid start_date_new")
	}
	if row.EndDateOld, err = parseOptionalDate(r.EndDateOld); err != nil {
		return row, fmt.Errorf("invalid end_date_old")
	}
	if row.EndDateNew, err = parseOptionalDate(r.EndDateNew); err != nil {
		return row, fmt.Errorf("invalid end_date_new")
	}
	if r.EffectiveFrom != "" {
		if row.EffectiveFrom, err = parseDate(r.EffectiveFrom); err != nil {
			return row, fmt.Errorf("invalid effective_from")
		}
	}
	return row, nil
}

type billingDeltaRequest struct {
	PaymentDate string  `json:"payment_date" binding:"required"`
	Amount      float64 `json:"amount"`
	Note        string  `json:"note"`
}

func (r billingDeltaRequest) toModel() (model.BillingDelta, error) {
	date, err := parseDate(r.PaymentDate)
	if err != nil {
		return model.BillingDelta{}, fmt.Errorf("invalid payment_date")
	}
	return model.BillingDelta{PaymentDate: date, Amount: r.Amount, Note: r.Note}, nil
}

type reviewRequest struct {
	Action string `json:"action" binding:"required"`
	Notes  string `json:"notes"`
}

func (r reviewRequest) toAction() (service.ReviewAction, error) {
	switch strings.ToUpper(strings.TrimSpace(r.Action)) {
	case "APPROVE":
		return service.ReviewActionApprove, nil
	case "REQUEST_REVISION", "REQUEST REVISION":
		return service.ReviewActionRequestRevision, nil
	default:
		return "", fmt.Errorf("%w: action must be APPROVE or REQUEST_REVISION", service.ErrInvalidInput)
	}
}

type submitRequest struct {
	ReviewerID uint `json:"reviewer_id" binding:"required"`
}

type decisionRequest struct {
	Approve bool   `json:"approve"`
	Notes   string `json:"notes"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type paidRequest struct {
	Paid bool `json:"paid"`
}

func parseID(c *gin.Context, name string) (uint, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", service.ErrInvalidInput, name, raw)
	}
	return uint(id), nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, service.ErrInvalidInput
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, service.ErrInvalidInput
}

func readFormFile(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func parseOptionalDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	parsed, err := parseDate(*raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
