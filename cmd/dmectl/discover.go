package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mobiledgex/matchingengine/pkg/client"
	"github.com/mobiledgex/matchingengine/pkg/dme"
)

// discoverRow holds the outcome of one call in a discover run.
type discoverRow struct {
	api    string
	status string
	detail string
	err    error
}

type probe struct {
	api string
	run func(ctx context.Context, c *client.Client, loc *dme.Loc) (status, detail string, err error)
}

// discoverProbes are issued concurrently over one session.
var discoverProbes = []probe{
	{dme.FindCloudletAPI.Name, func(ctx context.Context, c *client.Client, loc *dme.Loc) (string, string, error) {
		r, err := c.FindCloudlet(ctx, client.FindCloudletParams{Location: loc})
		if err != nil {
			return "", "", err
		}
		return r.StatusName(), r.FQDN, nil
	}},
	{dme.VerifyLocationAPI.Name, func(ctx context.Context, c *client.Client, loc *dme.Loc) (string, string, error) {
		r, err := c.VerifyLocation(ctx, client.VerifyLocationParams{Location: loc})
		if err != nil {
			return "", "", err
		}
		detail := r.TowerStatus.String()
		if r.GPSLocationAccuracyKm > 0 {
			detail = fmt.Sprintf("%s, within %g km", detail, r.GPSLocationAccuracyKm)
		}
		return r.StatusName(), detail, nil
	}},
	{dme.GetLocationAPI.Name, func(ctx context.Context, c *client.Client, loc *dme.Loc) (string, string, error) {
		r, err := c.GetLocation(ctx, client.GetLocationParams{})
		if err != nil {
			return "", "", err
		}
		detail := r.CarrierName
		if l := r.NetworkLocation; l != nil {
			detail = fmt.Sprintf("%s %.4f,%.4f", detail, l.Latitude, l.Longitude)
		}
		return r.StatusName(), detail, nil
	}},
	{dme.GetAppInstListAPI.Name, func(ctx context.Context, c *client.Client, loc *dme.Loc) (string, string, error) {
		r, err := c.GetAppInstList(ctx, client.AppInstListParams{Location: loc})
		if err != nil {
			return "", "", err
		}
		return r.StatusName(), fmt.Sprintf("%d cloudlet(s)", len(r.Cloudlets)), nil
	}},
	{dme.GetFqdnListAPI.Name, func(ctx context.Context, c *client.Client, loc *dme.Loc) (string, string, error) {
		r, err := c.GetFqdnList(ctx)
		if err != nil {
			return "", "", err
		}
		return r.StatusName(), fmt.Sprintf("%d fqdn(s)", len(r.AppFqdns)), nil
	}},
	{dme.QosPositionKpiAPI.Name, func(ctx context.Context, c *client.Client, loc *dme.Loc) (string, string, error) {
		r, err := c.GetQosPositionKpi(ctx, []dme.QosPosition{{PositionID: 1, GPSLocation: loc}})
		if err != nil {
			return "", "", err
		}
		if r.Error != nil {
			return r.StatusName(), fmt.Sprintf("code %d: %s", r.Error.Code, r.Error.Message), nil
		}
		if len(r.Result.PositionResults) == 0 {
			return r.StatusName(), "", nil
		}
		k := r.Result.PositionResults[0]
		return r.StatusName(), fmt.Sprintf("latency %.1f ms, down %.0f Mbps", k.LatencyAvg, k.DLUserThroughputAvg), nil
	}},
}

func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Register, then run every discovery call concurrently",
		Long: `discover registers the app and then issues FindCloudlet, VerifyLocation,
GetLocation, GetAppInstList, GetFqdnList and GetQosPositionKpi concurrently
over the same session. A failing call does not stop the others; each row
reports its own outcome.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := registered(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			rows := discover(cmd.Context(), c, deviceLocation(), discoverProbes)
			if jsonOutput() {
				return printDiscoverJSON(cmd, rows)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "API\tSTATUS\tDETAIL\tERROR")
			for _, r := range rows {
				if r.err != nil {
					fmt.Fprintf(w, "%s\t\t\t%s: %v\n", r.api, client.Classify(r.err), r.err)
				} else {
					fmt.Fprintf(w, "%s\t%s\t%s\t\n", r.api, r.status, r.detail)
				}
			}
			return w.Flush()
		},
	}
}

// discover runs probes concurrently and returns their rows in probe order.
func discover(ctx context.Context, c *client.Client, loc *dme.Loc, probes []probe) []discoverRow {
	type indexed struct {
		i   int
		row discoverRow
	}
	results := make(chan indexed, len(probes))
	for i, p := range probes {
		go func() {
			status, detail, err := p.run(ctx, c, loc)
			results <- indexed{i, discoverRow{api: p.api, status: status, detail: detail, err: err}}
		}()
	}

	ordered := make([]discoverRow, len(probes))
	for range probes {
		r := <-results
		ordered[r.i] = r.row
	}
	return ordered
}

func printDiscoverJSON(cmd *cobra.Command, rows []discoverRow) error {
	type jsonRow struct {
		API       string `json:"api"`
		Status    string `json:"status,omitempty"`
		Detail    string `json:"detail,omitempty"`
		ErrorKind string `json:"error_kind,omitempty"`
		Error     string `json:"error,omitempty"`
	}
	out := make([]jsonRow, len(rows))
	for i, r := range rows {
		out[i] = jsonRow{API: r.api, Status: r.status, Detail: r.detail}
		if r.err != nil {
			out[i].ErrorKind = client.Classify(r.err).String()
			out[i].Error = r.err.Error()
		}
	}
	return printJSON(cmd.OutOrStdout(), out)
}
