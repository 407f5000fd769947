package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rescp17/bleota/pkg/host/tcp"
	"github.com/rescp17/bleota/pkg/ota"
)

func abortCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "abort",
		Short: "Tell an update host to abandon the transfer in progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := tcp.Dial(addr, dialTimeout)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := conn.WriteData([]byte(ota.TokenAbort)); err != nil {
				return fmt.Errorf("failed to send abort: %w", err)
			}
			fmt.Println("Abort sent")
			return nil
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Update host address")
	if err := cmd.MarkFlagRequired("addr"); err != nil {
		panic(err)
	}
	return cmd
}
