package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/CZERTAINLY/ProductMedia/internal/store"
	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "manage the product catalog the worker attaches images to",
}

var productsListCmd = &cobra.Command{
	Use:   "list",
	Short: "print all products with their images as yaml",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd, func(st *store.Store) error {
			products, err := st.List(cmd.Context())
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			if err := enc.Encode(products); err != nil {
				return fmt.Errorf("encoding products: %w", err)
			}
			return enc.Close()
		})
	},
}

var productsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "add a product and print its id",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(st *store.Store) error {
			p, err := st.Add(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), p.ID)
			return err
		})
	},
}

func withStore(cmd *cobra.Command, fn func(*store.Store) error) error {
	st, err := store.Open(cmd.Context(), config.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.ErrorContext(cmd.Context(), "closing store has failed", "error", err)
		}
	}()
	return fn(st)
}
