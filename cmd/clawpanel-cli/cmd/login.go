package cmd

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var loginShowQR bool

var loginCmd = &cobra.Command{
	Use:   "login <channel>",
	Short: "Resolve the logged-in account of a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		api, err := newAPIClient(ctx)
		if err != nil {
			return err
		}
		name := url.PathEscape(args[0])
		body, err := api.do(ctx, http.MethodPost, "/api/channels/"+name+"/login", nil)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		res := gjson.ParseBytes(body)
		switch {
		case res.Get("logged_in").Bool():
			fmt.Fprintln(out, successStyle.Render("logged in as "+res.Get("identity.display_name").String()))
			return nil
		case res.Get("error").String() != "":
			fmt.Fprintln(out, errorStyle.Render("login unknown: "+res.Get("error").String()))
		default:
			fmt.Fprintln(out, errorStyle.Render("not logged in"))
		}
		if !loginShowQR {
			return nil
		}

		body, err = api.do(ctx, http.MethodGet, "/api/channels/"+name+"/login/url", nil)
		if err != nil {
			return err
		}
		pairing := gjson.GetBytes(body, "url").String()
		q, err := qrcode.New(pairing, qrcode.Medium)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "Scan to log in:", pairing)
		fmt.Fprint(out, q.ToSmallString(false))
		return nil
	},
}

func init() {
	loginCmd.Flags().BoolVar(&loginShowQR, "qr", false, "Print the pairing page as a QR code when not logged in")
}
