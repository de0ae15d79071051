package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"patient-records-server/internal/client"
	"patient-records-server/internal/config"
	"patient-records-server/internal/logger"
	"patient-records-server/internal/models"
	"patient-records-server/internal/viewmodel"
)

// clientFlags are shared by the subcommands that talk to a running server.
type clientFlags struct {
	baseURL  string
	email    string
	password string
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "API base URL (defaults to API_BASE_URL)")
	cmd.Flags().StringVar(&f.email, "email", "", "log in with this account instead of API_TOKEN")
	cmd.Flags().StringVar(&f.password, "password", "", "password for --email")
}

func (f *clientFlags) connect(ctx context.Context) (*client.Client, *config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("error loading config: %w", err)
	}
	if f.baseURL != "" {
		cfg.Client.BaseURL = f.baseURL
	}

	c := client.FromConfig(cfg.Client)
	if f.email != "" {
		if _, err := c.Login(ctx, f.email, f.password); err != nil {
			return nil, nil, fmt.Errorf("login failed: %w", err)
		}
	}
	return c, cfg, nil
}

func dashboardCmd() *cobra.Command {
	var (
		flags clientFlags
		watch time.Duration
	)
	cmd := &cobra.Command{
		Use:   "dashboard <patientID>",
		Short: "Show a patient's demographics, notes and medication orders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, cfg, err := flags.connect(ctx)
			if err != nil {
				return err
			}

			d := viewmodel.NewPatientDashboard(c, args[0],
				viewmodel.WithCooldown(cfg.Client.RefreshCooldown),
				viewmodel.WithLogger(logger.New(cfg.LogLevel)),
			)
			defer d.Close()

			if _, err := d.FetchPatientData(ctx, true); err != nil {
				return err
			}
			st, _ := d.State()
			printDashboard(cmd.OutOrStdout(), st)

			if watch <= 0 {
				return nil
			}

			ticker := time.NewTicker(watch)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
				refreshed, err := d.FetchPatientData(ctx, false)
				if err != nil {
					// The previous state is kept; try again on the next tick.
					fmt.Fprintln(cmd.ErrOrStderr(), "refresh failed:", err)
					continue
				}
				if refreshed {
					st, _ := d.State()
					printDashboard(cmd.OutOrStdout(), st)
				}
			}
		},
	}
	flags.register(cmd)
	cmd.Flags().DurationVar(&watch, "watch", 0, "poll for changes at this interval; refreshes inside the cooldown are skipped")
	return cmd
}

func printDashboard(out io.Writer, st viewmodel.DashboardState) {
	demo := st.Demographics
	fmt.Fprintf(out, "%s (%s)  fetched %s\n", demo.FullName, demo.ID, st.FetchedAt.Format(time.RFC3339))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "DOB\t%s\tGender\t%s\n", demo.DateOfBirth, demo.Gender)
	fmt.Fprintf(w, "Phone\t%s\tEmail\t%s\n", demo.Phone, demo.Email)
	fmt.Fprintf(w, "City\t%s\tCountry\t%s\n", demo.City, demo.Country)
	fmt.Fprintf(w, "Language\t%s\tPriority\t%s\n", demo.Language, demo.Priority)
	fmt.Fprintf(w, "Allergies\t%s\t\t\n", demo.Allergies)
	_ = w.Flush()

	fmt.Fprintf(out, "\nNotes: %d published, %d drafts\n", len(st.Notes.Published), len(st.Notes.Drafts))
	for _, n := range st.Notes.Published {
		fmt.Fprintf(out, "  [%s] %s  %s\n", n.NoteType, n.Title, n.AuthorName)
	}
	for _, n := range st.Notes.Drafts {
		fmt.Fprintf(out, "  [%s, draft] %s  %s\n", n.NoteType, n.Title, n.AuthorName)
	}

	fmt.Fprintf(out, "\nMedication orders: %d\n", len(st.Orders))
	printOrders(out, st.Orders)
}

func printOrders(out io.Writer, orders []models.MedOrder) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tPRESCRIBER\tMEDICATIONS\tVALIDATED")
	for _, o := range orders {
		date := "-"
		if !o.Date.IsZero() {
			date = o.Date.Format("2006-01-02")
		}
		meds := make([]string, 0, len(o.Items))
		for _, it := range o.Items {
			meds = append(meds, it.Medication+" "+it.Dosage)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", o.ID.Hex(), date, o.PrescriberName, strings.Join(meds, ", "), o.Validated)
	}
	_ = w.Flush()
}

func medOrdersCmd() *cobra.Command {
	var (
		flags     clientFlags
		limit     int
		patientID string
		all       bool
	)
	cmd := &cobra.Command{
		Use:   "med-orders",
		Short: "List medication orders, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, _, err := flags.connect(ctx)
			if err != nil {
				return err
			}

			fetch := func(ctx context.Context, page, limit int) (client.Page[models.MedOrder], error) {
				if patientID != "" {
					return c.ListPatientOrders(ctx, patientID, page, limit)
				}
				return c.ListAllOrders(ctx, page, limit)
			}
			p := viewmodel.NewPager[models.MedOrder](fetch, limit)

			if all {
				err = p.LoadAll(ctx)
			} else {
				err = p.LoadNext(ctx)
			}
			if err != nil {
				return err
			}

			printOrders(cmd.OutOrStdout(), p.Items())
			if p.HasMore() {
				fmt.Fprintln(cmd.OutOrStdout(), "(more orders available; pass --all to load every page)")
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 0, "page size (defaults to the server default)")
	cmd.Flags().StringVar(&patientID, "patient", "", "only orders of this patient")
	cmd.Flags().BoolVar(&all, "all", false, "load every page")
	return cmd
}
