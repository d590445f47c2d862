package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/erpstore/internal/ledger"
	"github.com/roach88/erpstore/internal/schema"
)

// LedgerOptions holds flags shared by commands that post to the ledgers.
type LedgerOptions struct {
	*RootOptions
	Actor string
}

func (o *LedgerOptions) actor() ledger.Actor {
	if o.Actor == "" {
		return ledger.System
	}
	return ledger.Actor{ID: o.Actor}
}

// NewProductCommand creates the product command group.
func NewProductCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}
	in := ledger.ProductInput{}

	cmd := &cobra.Command{
		Use:   "product",
		Short: "Maintain the product catalog",
	}
	cmd.PersistentFlags().StringVar(&opts.Actor, "actor", "", "operator recorded on the change")

	upsert := &cobra.Command{
		Use:   "upsert <cod>",
		Short: "Create a product or edit its details",
		Long: `Create a product or edit its descriptive fields. Amounts are in
centavos. --qty is posted as an entrada movement and only applies when the
product is new; use "stock move" to change the quantity of an existing one.

Example:
  erpstore product upsert 7891000 --nome "Arroz 5kg" --custo 1800 --preco 2790 --qty 12`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Cod = args[0]
			return runProductUpsert(opts, in, cmd)
		},
	}
	upsert.Flags().StringVar(&in.Nome, "nome", "", "product name")
	upsert.Flags().Int64Var(&in.CustoC, "custo", 0, "unit cost in centavos")
	upsert.Flags().Int64Var(&in.PrecoC, "preco", 0, "unit price in centavos")
	upsert.Flags().Int64Var(&in.Min, "min", 0, "minimum stock level")
	upsert.Flags().StringVar(&in.Barcode, "barcode", "", "barcode")
	upsert.Flags().StringVar(&in.Categoria, "categoria", "", "category")
	upsert.Flags().Int64Var(&in.InitialQty, "qty", 0, "initial quantity for a new product")
	cmd.AddCommand(upsert)

	return cmd
}

func runProductUpsert(opts *LedgerOptions, in ledger.ProductInput, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	st, err := opts.openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	p, err := st.ledger().UpsertProduct(ctx, opts.actor(), in)
	if err != nil {
		return ledgerExit("upsert product", err)
	}

	f := opts.formatter(cmd)
	if f.Format == "json" {
		return f.Success(p)
	}
	fmt.Fprintf(f.Writer, "✓ %s %s: qtd %d, preço %d, lucro %.2f%%\n", p.Cod, p.Nome, p.Qtd, p.PrecoC, p.LucroP)
	return nil
}

// MoveOptions holds flags for the stock move command.
type MoveOptions struct {
	LedgerOptions
	Type   string
	Cod    string
	Qty    int64
	Reason string
}

// NewStockCommand creates the stock command group.
func NewStockCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MoveOptions{LedgerOptions: LedgerOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Post stock movements",
	}

	move := &cobra.Command{
		Use:   "move",
		Short: "Post a stock movement",
		Long: `Post an entrada, saida, perda, devolucao or ajuste movement. The sign
of --qty is forced by the type except for ajuste. The product quantity
never drops below zero; a clamped movement is flagged in its meta.

Examples:
  erpstore stock move --type entrada --cod 7891000 --qty 24 --reason "NF 1234"
  erpstore stock move --type ajuste --cod 7891000 --qty -2`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStockMove(opts, cmd)
		},
	}
	move.Flags().StringVar(&opts.Type, "type", "", "movement type (entrada|saida|ajuste|perda|devolucao)")
	move.Flags().StringVar(&opts.Cod, "cod", "", "product code")
	move.Flags().Int64Var(&opts.Qty, "qty", 0, "quantity")
	move.Flags().StringVar(&opts.Reason, "reason", "", "free-text reason")
	move.Flags().StringVar(&opts.Actor, "actor", "", "operator recorded on the movement")
	_ = move.MarkFlagRequired("type")
	_ = move.MarkFlagRequired("cod")
	_ = move.MarkFlagRequired("qty")
	cmd.AddCommand(move)

	return cmd
}

func runStockMove(opts *MoveOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	st, err := opts.openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	mv, err := st.ledger().AddMovement(ctx, opts.actor(), ledger.MovementInput{
		Type:       schema.MovementType(opts.Type),
		ProductCod: opts.Cod,
		QtyDelta:   opts.Qty,
		Reason:     opts.Reason,
	})
	if err != nil {
		return ledgerExit("stock move", err)
	}

	f := opts.formatter(cmd)
	if f.Format == "json" {
		return f.Success(mv)
	}
	fmt.Fprintf(f.Writer, "✓ %s %s %+d\n", mv.Type, mv.ProductCod, mv.QtyDelta)
	return nil
}

// CancelOptions holds flags for the sale cancel command.
type CancelOptions struct {
	LedgerOptions
	Reason  string
	Restock bool
}

// NewSaleCommand creates the sale command group.
func NewSaleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CancelOptions{LedgerOptions: LedgerOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "sale",
		Short: "Manage recorded sales",
	}

	cancel := &cobra.Command{
		Use:   "cancel <sale-id>",
		Short: "Void a sale",
		Long: `Void a sale. With --restock every line is returned to stock as a
devolucao movement. When a cash session is open the sale total is posted
to it as an estorno. A sale can be voided once.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSaleCancel(opts, args[0], cmd)
		},
	}
	cancel.Flags().StringVar(&opts.Reason, "reason", "", "reason for the void")
	cancel.Flags().BoolVar(&opts.Restock, "restock", true, "return the items to stock")
	cancel.Flags().StringVar(&opts.Actor, "actor", "", "operator recorded on the void")
	cmd.AddCommand(cancel)

	return cmd
}

func runSaleCancel(opts *CancelOptions, saleID string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	st, err := opts.openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	void, err := st.ledger().CancelSale(ctx, opts.actor(), saleID, opts.Reason, opts.Restock)
	if err != nil {
		return ledgerExit("cancel sale", err)
	}

	f := opts.formatter(cmd)
	if f.Format == "json" {
		return f.Success(void)
	}
	fmt.Fprintf(f.Writer, "✓ Sale %s voided\n", saleID)
	return nil
}
