package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/bharatemr/practice/internal/domain/patient"
	"github.com/bharatemr/practice/internal/domain/visit"
	"github.com/bharatemr/practice/internal/platform/browser"
	"github.com/bharatemr/practice/internal/platform/download"
	"github.com/bharatemr/practice/internal/platform/notify"
	"github.com/bharatemr/practice/internal/platform/query"
	"github.com/bharatemr/practice/internal/platform/validation"
	"github.com/bharatemr/practice/pkg/pagination"
)

// ---------------------------------------------------------------------------
// Query flags
// ---------------------------------------------------------------------------

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("search", "q", "", "Search text")
	cmd.Flags().StringArrayP("filter", "f", nil, "Filter as name=value (repeatable)")
	cmd.Flags().String("sort", "", "Sort key")
	cmd.Flags().String("dir", "", "Sort direction (asc or desc)")
	cmd.Flags().Int("page", 0, "Page number")
	cmd.Flags().Int("size", 0, "Page size")
	cmd.Flags().String("query", "", "Encoded query string, e.g. from a shared link")
}

// queryValues collects the query flags in flat form. Filter values are
// checked against rules first so a typo is reported instead of silently
// dropped by the codec.
func queryValues(cmd *cobra.Command, rules validation.RuleSet) (url.Values, error) {
	raw, _ := cmd.Flags().GetString("query")
	values, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil {
		return nil, fmt.Errorf("--query: %w", err)
	}

	filters, _ := cmd.Flags().GetStringArray("filter")
	form := map[string]string{}
	for _, f := range filters {
		name, value, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("--filter %q: expected name=value", f)
		}
		form[name] = value
		values.Set(name, value)
	}
	if errs := rules.Validate(form); errs != nil {
		return nil, errs
	}

	for _, key := range []string{"search", "sort", "dir"} {
		if v, _ := cmd.Flags().GetString(key); v != "" {
			values.Set(flagKey(key), v)
		}
	}
	for _, key := range []string{"page", "size"} {
		if n, _ := cmd.Flags().GetInt(key); n > 0 {
			values.Set(flagKey(key), strconv.Itoa(n))
		}
	}
	return values, nil
}

func flagKey(flag string) string {
	switch flag {
	case "search":
		return query.KeySearch
	case "sort":
		return query.KeySort
	case "dir":
		return query.KeyDirection
	case "page":
		return query.KeyPage
	default:
		return query.KeyPageSize
	}
}

// browse restores b from values and waits for the page to load.
func browse[T any](ctx context.Context, b *browser.Browser[T], values url.Values) (*pagination.Page[T], query.State, error) {
	defer b.Close()
	if err := b.Restore(values); err != nil {
		return nil, query.State{}, err
	}
	snap, err := b.Await(ctx)
	if err != nil {
		return nil, query.State{}, err
	}
	if snap.Err != nil {
		return nil, snap.Query, snap.Err
	}
	return snap.Page, snap.Query, nil
}

func footer[T any](out io.Writer, page *pagination.Page[T], link string) {
	fmt.Fprintf(out, "\nPage %d of %d (%d records)", page.Page, page.TotalPages, page.TotalItems)
	if page.HasNext() {
		fmt.Fprint(out, ", more with --page ", page.Page+1)
	}
	fmt.Fprintln(out)
	if link != "" {
		fmt.Fprintln(out, "Query:", link)
	}
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Patients
// ---------------------------------------------------------------------------

func patientsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patients",
		Short: "Browse and register patients",
	}
	cmd.AddCommand(patientsListCmd(), patientsAddCmd(), patientsExportCmd())
	return cmd
}

func patientsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List patients in the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			values, err := queryValues(cmd, patient.FilterRules)
			if err != nil {
				return err
			}
			page, st, err := browse(cmd.Context(), patient.NewService(e.client, e.logger).Registry(), values)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCODE\tNAME\tAGE\tGENDER\tMOBILE\tCITY\tREGISTERED")
			for _, p := range page.Rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
					p.ID, p.PatientID, p.FullName, p.Age, p.Gender, p.Mobile, p.City, p.CreatedAt.Format("02 Jan 2006"))
			}
			w.Flush()
			footer(out, page, patient.RegistrySchema.String(st))
			return nil
		},
	}
	addQueryFlags(cmd)
	return cmd
}

func patientsAddCmd() *cobra.Command {
	var form patient.Onboarding
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			id, err := patient.NewService(e.client, e.logger).Onboard(cmd.Context(), form)
			if err != nil {
				return err
			}
			e.sink.Notify("Patient registered", notify.Success)
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&form.FullName, "name", "", "Full name")
	f.StringVar(&form.MobileNumber, "mobile", "", "10-digit mobile number")
	f.StringVar(&form.Email, "email", "", "Email address")
	f.StringVar(&form.DateOfBirth, "dob", "", "Date of birth (YYYY-MM-DD)")
	f.StringVar(&form.Gender, "gender", "", "MALE, FEMALE or OTHER")
	f.StringVar(&form.BloodGroup, "blood-group", "", "Blood group, e.g. O+")
	f.StringVar(&form.Address, "address", "", "Street address")
	f.StringVar(&form.City, "city", "", "City")
	f.StringVar(&form.State, "state", "", "State")
	f.StringVar(&form.Pincode, "pincode", "", "6-digit pincode")
	f.StringVar(&form.EmergencyContactName, "emergency-name", "", "Emergency contact name")
	f.StringVar(&form.EmergencyContactNumber, "emergency-mobile", "", "Emergency contact mobile number")
	return cmd
}

func patientsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export matching patients to a spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			values, err := queryValues(cmd, patient.FilterRules)
			if err != nil {
				return err
			}
			data, err := patient.NewService(e.client, e.logger).Export(cmd.Context(), patient.RegistrySchema.Decode(values))
			if err != nil {
				return err
			}
			out, _ := cmd.Flags().GetString("out")
			if err := writeFile(out, data); err != nil {
				return err
			}
			e.sink.Notify("Exported "+out, notify.Success)
			return nil
		},
	}
	addQueryFlags(cmd)
	cmd.Flags().StringP("out", "o", "patients.xlsx", "Output file")
	return cmd
}

// ---------------------------------------------------------------------------
// Visits
// ---------------------------------------------------------------------------

func visitsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "visits",
		Short: "Browse visit history and prescriptions",
	}
	cmd.AddCommand(visitsListCmd(), visitsShowCmd(), visitsDownloadCmd(), visitsExportCmd())
	return cmd
}

func visitsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visits of the signed-in doctor or patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			values, err := queryValues(cmd, visit.FilterRules)
			if err != nil {
				return err
			}
			log, err := visit.NewService(e.client, e.identity, e.logger).Log()
			if err != nil {
				return err
			}
			page, st, err := browse(cmd.Context(), log, values)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDATE\tPATIENT\tDOCTOR\tCOMPLAINT\tRX\tSTATUS")
			for _, v := range page.Rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					v.ID, v.CreatedAt.Format("02 Jan 2006 15:04"), v.PatientName, v.DoctorName,
					truncate(v.ChiefComplaint, 40), len(v.Medicines), v.Status)
			}
			w.Flush()
			footer(out, page, visit.LogSchema.String(st))
			return nil
		},
	}
	addQueryFlags(cmd)
	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func visitsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <visitId>",
		Short: "Print one visit as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			v, err := visit.NewService(e.client, e.identity, e.logger).GetVisit(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func visitsDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download <visitId>...",
		Short: "Save visit prescriptions as PDF files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
				e.cfg.DownloadDir = dir
			}
			store, err := e.downloads()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			trigger := download.New(e.client, store, download.PrescriptionPath, e.sink, e.logger)
			for _, id := range args {
				trigger.DownloadAsFile(ctx, id, download.PrescriptionFilename(id))
			}
			trigger.Wait()
			return nil
		},
	}
	cmd.Flags().String("dir", "", "Directory to save into (default DOWNLOAD_DIR)")
	return cmd
}

func visitsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export matching visits to a spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			values, err := queryValues(cmd, visit.FilterRules)
			if err != nil {
				return err
			}
			data, err := visit.NewService(e.client, e.identity, e.logger).Export(cmd.Context(), visit.LogSchema.Decode(values))
			if err != nil {
				return err
			}
			out, _ := cmd.Flags().GetString("out")
			if err := writeFile(out, data); err != nil {
				return err
			}
			e.sink.Notify("Exported "+out, notify.Success)
			return nil
		},
	}
	addQueryFlags(cmd)
	cmd.Flags().StringP("out", "o", "visits.xlsx", "Output file")
	return cmd
}
