package main

import (
	"context"
	"fmt"

	"github.com/mlops-eval/typedb-driver/src/connection"
	"github.com/mlops-eval/typedb-driver/src/protocol"
	"github.com/mlops-eval/typedb-driver/src/query"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the server is serving",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, client *connection.Client) error {
			if err := client.Health(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "SERVING")
			return nil
		})
	},
}

var databasesCmd = &cobra.Command{
	Use:   "databases",
	Short: "Manage databases",
}

var databasesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, client *connection.Client) error {
			dbs, err := client.Databases().All(ctx)
			if err != nil {
				return err
			}
			for _, db := range dbs {
				fmt.Fprintln(cmd.OutOrStdout(), db.Name())
			}
			return nil
		})
	},
}

var databasesCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, client *connection.Client) error {
			return client.Databases().Create(ctx, args[0])
		})
	},
}

var databasesDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, client *connection.Client) error {
			db, err := client.Databases().Get(ctx, args[0])
			if err != nil {
				return err
			}
			return db.Delete(ctx)
		})
	},
}

// QueryFlags select where a query runs
type QueryFlags struct {
	Database        string
	SessionType     string
	TransactionType string
	BatchSize       int32
	Infer           bool
	Commit          bool
}

var queryFlags QueryFlags

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a query in a new transaction",
}

// streamingQuery builds a command for a query kind that streams answers.
func streamingQuery(use, short string, run func(*query.Manager, string, *protocol.Options) (*query.AnswerIterator, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " QUERY",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inTransaction(func(ctx context.Context, tx *connection.Transaction) error {
				answers, err := run(tx.Query(), args[0], nil)
				if err != nil {
					return err
				}
				defer answers.Close()
				count := 0
				for answer, err := range answers.Seq(ctx) {
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), string(answer))
					count++
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%d answers\n", count)
				return nil
			})
		},
	}
}

// executedQuery builds a command for a query kind with no answers.
func executedQuery(use, short string, run func(*query.Manager, context.Context, string, *protocol.Options) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " QUERY",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inTransaction(func(ctx context.Context, tx *connection.Transaction) error {
				return run(tx.Query(), ctx, args[0], nil)
			})
		},
	}
}

var queryAggregateCmd = &cobra.Command{
	Use:   "aggregate QUERY",
	Short: "Run an aggregate match query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return inTransaction(func(ctx context.Context, tx *connection.Transaction) error {
			answer, err := tx.Query().MatchAggregate(ctx, args[0], nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(answer))
			return nil
		})
	},
}

// inTransaction opens a session and a transaction as selected by the query
// flags, runs fn, and commits when asked to.
func inTransaction(fn func(ctx context.Context, tx *connection.Transaction) error) error {
	sessionType, err := protocol.ParseSessionType(queryFlags.SessionType)
	if err != nil {
		return err
	}
	txType, err := protocol.ParseTransactionType(queryFlags.TransactionType)
	if err != nil {
		return err
	}
	options := &protocol.Options{Infer: protocol.Bool(queryFlags.Infer)}
	if queryFlags.BatchSize != 0 {
		options.BatchSize = protocol.Int32(queryFlags.BatchSize)
	}

	return withClient(func(ctx context.Context, client *connection.Client) error {
		session, err := client.Session(ctx, queryFlags.Database, sessionType, nil)
		if err != nil {
			return err
		}
		defer session.Close()

		tx, err := session.Transaction(ctx, txType, options)
		if err != nil {
			return err
		}
		defer tx.Close()

		if err := fn(ctx, tx); err != nil {
			return err
		}
		if queryFlags.Commit {
			return tx.Commit(ctx)
		}
		return nil
	})
}

func init() {
	databasesCmd.AddCommand(databasesListCmd, databasesCreateCmd, databasesDeleteCmd)

	queryCmd.PersistentFlags().StringVarP(&queryFlags.Database, "database", "d", "", "database to query")
	queryCmd.PersistentFlags().StringVar(&queryFlags.SessionType, "session", "data", "session type: data|schema")
	queryCmd.PersistentFlags().StringVar(&queryFlags.TransactionType, "tx", "read", "transaction type: read|write")
	queryCmd.PersistentFlags().Int32Var(&queryFlags.BatchSize, "batch-size", 0, "answers per response part (default: $BATCH_SIZE)")
	queryCmd.PersistentFlags().BoolVar(&queryFlags.Infer, "infer", false, "enable reasoning")
	queryCmd.PersistentFlags().BoolVar(&queryFlags.Commit, "commit", false, "commit the transaction after the query")
	_ = queryCmd.MarkPersistentFlagRequired("database")

	queryCmd.AddCommand(
		streamingQuery("match", "Run a match query", (*query.Manager).Match),
		streamingQuery("match-group", "Run a match group query", (*query.Manager).MatchGroup),
		streamingQuery("insert", "Run an insert query", (*query.Manager).Insert),
		streamingQuery("update", "Run an update query", (*query.Manager).Update),
		queryAggregateCmd,
		executedQuery("define", "Run a define query", (*query.Manager).Define),
		executedQuery("undefine", "Run an undefine query", (*query.Manager).Undefine),
		executedQuery("delete", "Run a delete query", (*query.Manager).Delete),
	)
}
