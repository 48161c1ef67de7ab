package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/normalize"
	"github.com/sells-group/leadgate/internal/validate"
)

var (
	validateUser  string
	validateCand  model.CandidateLead
	validateCheck bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate one candidate lead and print the result",
	Long:  "Runs one candidate through the pipeline for --user. With --dry-run only the pattern rules run and nothing is charged or stored.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if validateCand.Phone == "" {
			return eris.New("--phone is required")
		}

		if validateCheck {
			v, err := loadValidator()
			if err != nil {
				return err
			}
			return printJSON(checkCandidate(v, validateCand))
		}

		if validateUser == "" {
			return eris.New("--user is required unless --dry-run is set")
		}
		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.Run(ctx, validateCand, validateUser)
		if res != nil {
			if pErr := printJSON(res); pErr != nil {
				return pErr
			}
		}
		return err
	},
}

func init() {
	f := validateCmd.Flags()
	f.StringVar(&validateUser, "user", "", "user charged for the lead")
	f.StringVar(&validateCand.Name, "name", "", "business name")
	f.StringVar(&validateCand.Phone, "phone", "", "WhatsApp phone")
	f.StringVar(&validateCand.Email, "email", "", "contact email")
	f.StringVar(&validateCand.BusinessCategory, "category", "", "business category")
	f.BoolVar(&validateCheck, "dry-run", false, "apply the pattern rules only")
	rootCmd.AddCommand(validateCmd)
}

// patternCheck is the dry-run report: the pattern verdict without domain,
// blacklist or duplicate lookups.
type patternCheck struct {
	NormalizedPhone string                  `json:"normalized_phone"`
	Verdict         model.ValidationVerdict `json:"verdict"`
	Status          model.LeadStatus        `json:"status"`
	Reason          string                  `json:"reason,omitempty"`
	RulesVersion    string                  `json:"rules_version"`
}

func checkCandidate(v *validate.Validator, c model.CandidateLead) patternCheck {
	phone := normalize.Phone(c.Phone)
	out := patternCheck{NormalizedPhone: phone, RulesVersion: v.Version()}

	vd := &out.Verdict
	pr := v.CheckPhone(phone)
	vd.ValidPhone, vd.PhoneSeverity, vd.PhoneCategory = pr.Valid, pr.Severity, pr.Category
	if pr.Description != "" {
		vd.PhoneReasons = []string{pr.Description}
	}
	if !vd.Critical() {
		er := v.CheckEmail(normalize.Email(c.Email))
		vd.ValidEmail, vd.EmailReasons = er.Valid, er.Reasons
		nr := v.CheckName(normalize.Name(c.Name))
		vd.ValidName, vd.NameReasons = nr.Valid, nr.Reasons
	}
	out.Status = vd.Status()
	out.Reason = vd.RejectionReason()
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
