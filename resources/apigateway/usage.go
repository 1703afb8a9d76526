package apigateway

import (
	"fmt"

	"github.com/lex00/cdkutils-go/stack"
)

// Quota caps the requests a plan allows per period (DAY, WEEK or MONTH).
type Quota struct {
	Limit  int
	Period string
}

// Throttle limits the steady request rate and burst of a plan.
type Throttle struct {
	RateLimit  float64
	BurstLimit int
}

type APIStage struct {
	ApiId any
	Stage any
}

// UsagePlan is an AWS::ApiGateway::UsagePlan.
type UsagePlan struct {
	stack.Construct `json:"-"`
	UsagePlanName   string
	Description     string
	Quota           *Quota
	Throttle        *Throttle
	ApiStages       []APIStage
}

func (*UsagePlan) ResourceType() string { return "AWS::ApiGateway::UsagePlan" }

// UsagePlanProps configures AddUsagePlan. Nil fields take the default
// quota of 100000 per DAY and throttle of 10000/s with bursts of 1000.
type UsagePlanProps struct {
	Quota       *Quota
	Throttle    *Throttle
	Description string
}

var validPeriods = map[string]bool{"DAY": true, "WEEK": true, "MONTH": true}

// AddUsagePlan declares plan name under "api-usage-<name>" for the API's
// deployment stage.
func AddUsagePlan(st *stack.Stack, api *RestAPI, name string, props UsagePlanProps) (*UsagePlan, error) {
	quota := props.Quota
	if quota == nil {
		quota = &Quota{Limit: DefaultQuotaLimit, Period: DefaultQuotaPeriod}
	}
	if !validPeriods[quota.Period] {
		return nil, fmt.Errorf("usage plan %q: unknown quota period %q", name, quota.Period)
	}
	throttle := props.Throttle
	if throttle == nil {
		throttle = &Throttle{RateLimit: DefaultRateLimit, BurstLimit: DefaultBurstLimit}
	}
	plan := &UsagePlan{
		UsagePlanName: name,
		Description:   props.Description,
		Quota:         quota,
		Throttle:      throttle,
		ApiStages:     []APIStage{{ApiId: api.Ref(), Stage: api.stage.Ref()}},
	}
	if err := st.Add("api-usage-"+name, plan); err != nil {
		return nil, err
	}
	return plan, nil
}
