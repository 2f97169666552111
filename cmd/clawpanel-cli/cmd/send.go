package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/clawpanel/clawpanel/internal/channel"
)

var (
	sendRoom bool
	sendFile bool
)

var sendCmd = &cobra.Command{
	Use:   "send <channel> <to> <text...>",
	Short: "Send a message through a channel",
	Long: `Send a text message, or with --file a file URL. QQ targets may be
prefixed with group: or private:; WeChat rooms need --room.`,
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		api, err := newAPIClient(ctx)
		if err != nil {
			return err
		}
		req := channel.SendRequest{
			To:      args[1],
			IsRoom:  sendRoom,
			Kind:    channel.SendText,
			Content: strings.Join(args[2:], " "),
		}
		if sendFile {
			req.Kind = channel.SendFile
		}
		body, err := api.do(ctx, http.MethodPost, "/api/channels/"+url.PathEscape(args[0])+"/send", req)
		if err != nil {
			return err
		}
		res := gjson.ParseBytes(body)
		if !res.Get("ok").Bool() {
			return errors.New("send failed: " + res.Get("error").String())
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("sent"))
		return nil
	},
}

func init() {
	sendCmd.Flags().BoolVar(&sendRoom, "room", false, "Target is a group or room")
	sendCmd.Flags().BoolVar(&sendFile, "file", false, "Content is a file URL")
}
