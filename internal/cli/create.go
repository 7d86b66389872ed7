package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mailsplit/mailsplit/internal/abtest"
	"github.com/mailsplit/mailsplit/internal/store"
)

// testSpec is the YAML shape of a test definition file.
type testSpec struct {
	Name              string  `yaml:"name"`
	WinnerCriteria    string  `yaml:"winner_criteria"`
	ConfidenceLevel   float64 `yaml:"confidence_level"`
	TestDurationHours int     `yaml:"test_duration_hours"`
	MinimumSampleSize int     `yaml:"minimum_sample_size"`
	Variants          []struct {
		Name         string            `yaml:"name"`
		Subject      string            `yaml:"subject"`
		Preheader    string            `yaml:"preheader"`
		Body         string            `yaml:"body"`
		TemplateData map[string]string `yaml:"template_data"`
		TrafficShare float64           `yaml:"traffic_share"`
	} `yaml:"variants"`
}

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var specFile string

	cmd := &cobra.Command{
		Use:   "create <test-id>",
		Short: "Create a new A/B test from a YAML definition",
		Long: `Create a new A/B test for a campaign from a YAML definition file.

The file names each variant's creative and its traffic share; shares
must sum to 1.0. When the file omits winner_criteria, you are prompted
to pick one.

Example definition:

  name: Spring sale
  winner_criteria: open_rate
  confidence_level: 0.95
  test_duration_hours: 24
  variants:
    - name: Short subject
      subject: "Sale starts now"
      traffic_share: 0.5
    - name: Long subject
      subject: "Our biggest spring sale starts today"
      traffic_share: 0.5

Example:
  mailsplit create camp-42 --file spring-sale.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			testID := args[0]

			data, err := os.ReadFile(specFile)
			if err != nil {
				return fmt.Errorf("failed to read definition: %w", err)
			}

			var def testSpec
			if err := yaml.Unmarshal(data, &def); err != nil {
				return fmt.Errorf("failed to parse definition: %w", err)
			}

			if def.WinnerCriteria == "" {
				def.WinnerCriteria, err = promptCriteria()
				if err != nil {
					return err
				}
			}
			if def.ConfidenceLevel == 0 {
				def.ConfidenceLevel = 0.95
			}

			cfg := store.TestConfig{
				Name:              def.Name,
				WinnerCriteria:    store.WinnerCriteria(def.WinnerCriteria),
				ConfidenceLevel:   def.ConfidenceLevel,
				TestDurationHours: def.TestDurationHours,
				MinimumSampleSize: def.MinimumSampleSize,
			}

			variants := make([]store.VariantConfig, len(def.Variants))
			for i, v := range def.Variants {
				variants[i] = store.VariantConfig{
					Name: v.Name,
					Content: store.Content{
						Subject:      v.Subject,
						Preheader:    v.Preheader,
						Body:         v.Body,
						TemplateData: v.TemplateData,
					},
					TrafficShare: v.TrafficShare,
				}
			}

			return withEngine(func(e *abtest.Engine) error {
				created, err := e.CreateTest(context.Background(), testID, cfg, variants)
				if err != nil {
					return fmt.Errorf("failed to create test: %w", err)
				}

				fmt.Printf("Created test '%s' with %d variants:\n", testID, len(created))
				for _, v := range created {
					fmt.Printf("  %s: %s (%.0f%% of audience)\n", v.ID, v.Name, v.TrafficShare*100)
				}
				fmt.Printf("Winner criteria: %s at %.0f%% confidence\n", cfg.WinnerCriteria, cfg.ConfidenceLevel*100)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&specFile, "file", "f", "", "YAML test definition (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func promptCriteria() (string, error) {
	criteria := []string{
		"open_rate",
		"click_rate",
		"conversion_rate",
	}

	prompt := promptui.Select{
		Label: "Winner criteria",
		Items: criteria,
		Size:  3,
	}

	idx, _, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			os.Exit(0)
		}
		return "", err
	}

	return criteria[idx], nil
}
