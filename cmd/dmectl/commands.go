package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mobiledgex/matchingengine/pkg/client"
	"github.com/mobiledgex/matchingengine/pkg/dme"
)

// ── register ─────────────────────────────────────────────────────────────────

func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Register the app and print the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, reply, err := registered(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			if jsonOutput() {
				return printJSON(cmd.OutOrStdout(), reply)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Status:       %s\n", reply.Status)
			fmt.Fprintf(w, "Cookie:       %s\n", reply.SessionCookie)
			fmt.Fprintf(w, "Token server: %s\n", reply.TokenServerURI)
			return nil
		},
	}
}

// ── findcloudlet ─────────────────────────────────────────────────────────────

func newFindCloudletCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "findcloudlet",
		Short: "Find the nearest cloudlet running the app",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := registered(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			reply, err := c.FindCloudlet(cmd.Context(), client.FindCloudletParams{Location: deviceLocation()})
			if err != nil {
				return err
			}
			if jsonOutput() {
				return printJSON(cmd.OutOrStdout(), reply)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Status:   %s\n", reply.Status)
			if reply.Status != dme.FindFound {
				return nil
			}
			fmt.Fprintf(w, "FQDN:     %s\n", reply.FQDN)
			if l := reply.CloudletLocation; l != nil {
				fmt.Fprintf(w, "Location: %.4f, %.4f\n", l.Latitude, l.Longitude)
			}
			for _, p := range reply.Ports {
				fmt.Fprintf(w, "Port:     %s %s\n", p.Proto, p.URL(reply.FQDN))
			}
			return nil
		},
	}
}

// ── verifylocation ───────────────────────────────────────────────────────────

func newVerifyLocationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verifylocation",
		Short: "Verify the device location with the carrier",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := registered(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			reply, err := c.VerifyLocation(cmd.Context(), client.VerifyLocationParams{Location: deviceLocation()})
			if err != nil {
				return err
			}
			if jsonOutput() {
				return printJSON(cmd.OutOrStdout(), reply)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Tower:    %s\n", reply.TowerStatus)
			fmt.Fprintf(w, "GPS:      %s\n", reply.GPSLocationStatus)
			if reply.GPSLocationAccuracyKm > 0 {
				fmt.Fprintf(w, "Accuracy: %g km\n", reply.GPSLocationAccuracyKm)
			}
			return nil
		},
	}
}

// ── getlocation ──────────────────────────────────────────────────────────────

func newGetLocationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "getlocation",
		Short: "Ask the carrier where it places the device",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := registered(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			reply, err := c.GetLocation(cmd.Context(), client.GetLocationParams{})
			if err != nil {
				return err
			}
			if jsonOutput() {
				return printJSON(cmd.OutOrStdout(), reply)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Status:   %s\n", reply.Status)
			fmt.Fprintf(w, "Carrier:  %s\n", reply.CarrierName)
			fmt.Fprintf(w, "Tower:    %d\n", reply.Tower)
			if l := reply.NetworkLocation; l != nil {
				fmt.Fprintf(w, "Location: %.4f, %.4f\n", l.Latitude, l.Longitude)
			}
			return nil
		},
	}
}

// ── appinstlist ──────────────────────────────────────────────────────────────

func newAppInstListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "appinstlist",
		Short: "List cloudlets running the app, nearest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := registered(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			reply, err := c.GetAppInstList(cmd.Context(), client.AppInstListParams{Location: deviceLocation()})
			if err != nil {
				return err
			}
			if jsonOutput() {
				return printJSON(cmd.OutOrStdout(), reply)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CLOUDLET\tCARRIER\tDISTANCE_KM\tFQDN")
			for _, cl := range reply.Cloudlets {
				for _, ai := range cl.Appinstances {
					fmt.Fprintf(w, "%s\t%s\t%.1f\t%s\n", cl.CloudletName, cl.CarrierName, cl.Distance, ai.FQDN)
				}
			}
			return w.Flush()
		},
	}
}

// ── fqdnlist ─────────────────────────────────────────────────────────────────

func newFqdnListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fqdnlist",
		Short: "List the published FQDNs of every app",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := registered(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			reply, err := c.GetFqdnList(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput() {
				return printJSON(cmd.OutOrStdout(), reply)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DEV\tAPP\tVERS\tFQDNS")
			for _, af := range reply.AppFqdns {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", af.DevName, af.AppName, af.AppVers, strings.Join(af.FQDNs, ","))
			}
			return w.Flush()
		},
	}
}

// ── dynamiclocgroup ──────────────────────────────────────────────────────────

func newDynamicLocGroupCmd() *cobra.Command {
	var (
		groupID  uint64
		commType string
		userData string
	)
	cmd := &cobra.Command{
		Use:   "dynamiclocgroup",
		Short: "Join a dynamic location group",
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, ok := dme.ParseDlgCommType(commType)
			if !ok {
				return fmt.Errorf("unknown comm type %q (want DLG_UNDEFINED, DLG_SECURE or DLG_OPEN)", commType)
			}
			c, _, err := registered(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			reply, err := c.AddToLocationGroup(cmd.Context(), client.LocationGroupParams{
				GroupID:  groupID,
				CommType: ct,
				UserData: userData,
			})
			if err != nil {
				return err
			}
			if jsonOutput() {
				return printJSON(cmd.OutOrStdout(), reply)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Status:       %s\n", reply.Status)
			if reply.GroupCookie != "" {
				fmt.Fprintf(w, "Group cookie: %s\n", reply.GroupCookie)
			}
			if reply.ErrorCode != 0 {
				fmt.Fprintf(w, "Error code:   %d\n", reply.ErrorCode)
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&groupID, "group-id", 0, "dynamic location group id")
	cmd.Flags().StringVar(&commType, "comm-type", "DLG_SECURE", "group communication type")
	cmd.Flags().StringVar(&userData, "user-data", "", "opaque data passed to the group")
	return cmd
}

// ── qoskpi ───────────────────────────────────────────────────────────────────

func newQosKpiCmd() *cobra.Command {
	var points []string
	cmd := &cobra.Command{
		Use:   "qoskpi --position <lat,lon> [--position <lat,lon>] ...",
		Short: "Predict throughput and latency along a route",
		RunE: func(cmd *cobra.Command, args []string) error {
			positions, err := parsePositions(points)
			if err != nil {
				return err
			}
			c, _, err := registered(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			reply, err := c.GetQosPositionKpi(cmd.Context(), positions)
			if err != nil {
				return err
			}
			if jsonOutput() {
				return printJSON(cmd.OutOrStdout(), reply)
			}
			if reply.Error != nil {
				return fmt.Errorf("qos kpi: code %d: %s", reply.Error.Code, reply.Error.Message)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "POSITION\tLAT\tLON\tDL_AVG\tUL_AVG\tLATENCY_AVG")
			for _, r := range reply.Result.PositionResults {
				var lat, lon float64
				if r.GPSLocation != nil {
					lat, lon = r.GPSLocation.Latitude, r.GPSLocation.Longitude
				}
				fmt.Fprintf(w, "%d\t%.4f\t%.4f\t%.1f\t%.1f\t%.1f\n",
					r.PositionID, lat, lon, r.DLUserThroughputAvg, r.ULUserThroughputAvg, r.LatencyAvg)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringArrayVar(&points, "position", nil, "route point as lat,lon (repeatable)")
	return cmd
}

// parsePositions turns "lat,lon" strings into positions numbered from 1.
func parsePositions(points []string) ([]dme.QosPosition, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("at least one --position is required")
	}
	out := make([]dme.QosPosition, len(points))
	for i, p := range points {
		latStr, lonStr, ok := strings.Cut(p, ",")
		if !ok {
			return nil, fmt.Errorf("position %q: want lat,lon", p)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
		if err != nil {
			return nil, fmt.Errorf("position %q: latitude: %w", p, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
		if err != nil {
			return nil, fmt.Errorf("position %q: longitude: %w", p, err)
		}
		out[i] = dme.QosPosition{PositionID: uint64(i + 1), GPSLocation: &dme.Loc{Latitude: lat, Longitude: lon}}
	}
	return out, nil
}
