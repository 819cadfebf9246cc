// internal/services/next_steps_service.go
package services

import (
	"github.com/loanbridge/loanbridge-backend/internal/models"
)

// NextStepsService produces the loan-type-specific checklist returned to a
// borrower after selecting an offer.
type NextStepsService struct{}

func NewNextStepsService() *NextStepsService {
	return &NextStepsService{}
}

func (s *NextStepsService) GenerateNextSteps(loanType models.LoanType) []string {
	switch loanType {
	case models.LoanTypeHome:
		return []string{
			"Review loan estimate and closing disclosure",
			"Schedule home inspection",
			"Provide homeowner insurance quote",
			"Complete home appraisal",
			"Lock interest rate",
			"Final walkthrough of property",
			"Sign closing documents",
			"Wire funds for down payment and closing costs",
		}
	case models.LoanTypeAuto:
		return []string{
			"Review loan terms and conditions",
			"Provide vehicle details and VIN",
			"Obtain auto insurance quote",
			"Complete vehicle appraisal or inspection",
			"Submit proof of income",
			"Sign loan agreement",
			"Complete vehicle purchase",
		}
	case models.LoanTypeDebtConsolidation:
		return []string{
			"Review current debts to consolidate",
			"Provide list of creditors and balances",
			"Verify credit report",
			"Submit income verification",
			"Agree to settlement with creditors if needed",
			"Complete consolidation process",
			"Set up automatic payments",
		}
	case models.LoanTypeStudent:
		return []string{
			"Verify school enrollment status",
			"Review loan disclosure statement",
			"Complete entrance counseling",
			"Sign master promissory note",
			"Funds will be disbursed to your school",
		}
	case models.LoanTypePersonal:
		return []string{
			"Review loan purpose and terms",
			"Verify identity with photo ID",
			"Verify income with recent pay stubs",
			"Sign promissory note",
			"Funds will be deposited to your account within 1-2 business days",
		}
	default:
		return []string{
			"Review the loan terms and conditions",
			"Submit proof of income",
			"Submit valid government-issued ID",
			"Schedule call with loan officer",
			"Review and sign all required documents",
		}
	}
}
