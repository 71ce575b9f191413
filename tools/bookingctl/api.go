package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotwise/libs/httpx"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type apiClient struct {
	baseURL  string
	tenantID string
	http     *http.Client
}

func newAPIClient(cfg settings) *apiClient {
	return &apiClient{
		baseURL:  cfg.BaseURL,
		tenantID: cfg.TenantID,
		http:     &http.Client{Timeout: cfg.Timeout},
	}
}

type slot struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Score     int    `json:"score,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type bookRequest struct {
	ProfessionalID string `json:"professional_id"`
	ServiceID      string `json:"service_id"`
	ClientName     string `json:"client_name,omitempty"`
	ClientEmail    string `json:"client_email,omitempty"`
	ClientPhone    string `json:"client_phone,omitempty"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time,omitempty"`
}

type apiError struct {
	Status  int
	Message string
	Field   string
}

func (e *apiError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("booking-service returned %d: %s (%s)", e.Status, e.Message, e.Field)
	}
	return fmt.Sprintf("booking-service returned %d: %s", e.Status, e.Message)
}

func (c *apiClient) slots(ctx context.Context, professionalID, serviceID, date string, plain bool) ([]slot, error) {
	q := url.Values{}
	q.Set("professional_id", professionalID)
	q.Set("service_id", serviceID)
	q.Set("date", date)
	if plain {
		q.Set("mode", "plain")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/public/slots?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var out []slot
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *apiClient) book(ctx context.Context, in bookRequest, idempotencyKey string) (map[string]any, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/public/book", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	out := map[string]any{}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *apiClient) do(req *http.Request, out any) error {
	req.Header.Set(httpx.TenantHeader, c.tenantID)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
			Field string `json:"field"`
		}
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &apiError{Status: resp.StatusCode, Message: e.Error, Field: e.Field}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func slotsCmd(v *viper.Viper) *cobra.Command {
	var professionalID, serviceID, date string
	var plain bool
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List bookable slots for a professional on a day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadSettings(v)
			if err != nil {
				return err
			}
			if err := cfg.requireTenant(); err != nil {
				return err
			}
			slots, err := newAPIClient(cfg).slots(cmd.Context(), professionalID, serviceID, date, plain)
			if err != nil {
				return err
			}
			printSlots(cmd.OutOrStdout(), slots, plain)
			return nil
		},
	}
	cmd.Flags().StringVar(&professionalID, "professional", "", "professional id")
	cmd.Flags().StringVar(&serviceID, "service", "", "service id")
	cmd.Flags().StringVar(&date, "date", "", "day in YYYY-MM-DD (business timezone)")
	cmd.Flags().BoolVar(&plain, "plain", false, "list unscored open starts")
	_ = cmd.MarkFlagRequired("professional")
	_ = cmd.MarkFlagRequired("service")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func printSlots(w io.Writer, slots []slot, plain bool) {
	if len(slots) == 0 {
		fmt.Fprintln(w, "no slots available")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if plain {
		fmt.Fprintln(tw, "START\tEND")
		for _, s := range slots {
			fmt.Fprintf(tw, "%s\t%s\n", s.StartTime, s.EndTime)
		}
	} else {
		fmt.Fprintln(tw, "START\tEND\tSCORE\tREASON")
		for _, s := range slots {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.StartTime, s.EndTime, s.Score, s.Reason)
		}
	}
	_ = tw.Flush()
}

func bookCmd(v *viper.Viper) *cobra.Command {
	var in bookRequest
	var key string
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book a confirmed appointment through the public endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadSettings(v)
			if err != nil {
				return err
			}
			if err := cfg.requireTenant(); err != nil {
				return err
			}
			if key == "" {
				key = uuid.NewString()
			}
			appt, err := newAPIClient(cfg).book(cmd.Context(), in, key)
			if err != nil {
				return err
			}
			out, _ := json.MarshalIndent(appt, "", "  ")
			fmt.Fprintf(cmd.OutOrStdout(), "idempotency key: %s\n%s\n", key, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.ProfessionalID, "professional", "", "professional id")
	cmd.Flags().StringVar(&in.ServiceID, "service", "", "service id")
	cmd.Flags().StringVar(&in.StartTime, "start", "", "start time (RFC3339)")
	cmd.Flags().StringVar(&in.EndTime, "end", "", "end time (RFC3339, defaults to service duration)")
	cmd.Flags().StringVar(&in.ClientName, "client-name", "", "client name")
	cmd.Flags().StringVar(&in.ClientEmail, "client-email", "", "client email")
	cmd.Flags().StringVar(&in.ClientPhone, "client-phone", "", "client phone")
	cmd.Flags().StringVar(&key, "idempotency-key", "", "replay key (random when empty)")
	_ = cmd.MarkFlagRequired("professional")
	_ = cmd.MarkFlagRequired("service")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}
