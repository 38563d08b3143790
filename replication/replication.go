package replication

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"icefloe/committer"
	"icefloe/config"
	"icefloe/schema"
	"icefloe/staging"
	"icefloe/storage"
	"icefloe/writer"

	"github.com/google/uuid"
	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"
)

// Replicator drives the pipeline: logical replication messages feed the
// writer, and a checkpoint ticker periodically flushes the writer's
// output through the staging layer into committed table snapshots.
type Replicator struct {
	config          *config.Config
	store           storage.Storage
	dbConn          *pgx.Conn
	replicationConn *pgconn.PgConn
	writer          *writer.Writer
	schemaManager   *schema.Manager

	// identity under which staged manifest locations are allocated
	jobID     string
	subtaskID int
	attempt   int64

	factories  map[string]*staging.OutputFileFactory
	committers map[string]*committer.Committer
}

func NewReplicator(cfg *config.Config, store storage.Storage) (*Replicator, error) {
	// Create a regular connection for querying the database
	dbConn, err := pgx.Connect(context.Background(), fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Database,
	))
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	// Initialize schema manager
	schemaManager := schema.NewSchemaManager(dbConn)

	// Initialize schemas for configured tables
	for _, table := range cfg.Tables {
		if err := schemaManager.InitializeSchema(context.Background(),
			table.Schema, table.Name); err != nil {
			return nil, fmt.Errorf("initializing schema for %s.%s: %w",
				table.Schema, table.Name, err)
		}
	}

	// Create a replication connection using pgconn
	replicationConn, err := pgconn.Connect(context.Background(), fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?replication=database",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Database,
	))
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres for replication: %w", err)
	}

	return &Replicator{
		config:          cfg,
		store:           store,
		dbConn:          dbConn,
		replicationConn: replicationConn,
		writer:          writer.NewWriter(store, schemaManager),
		schemaManager:   schemaManager,
		jobID:           uuid.NewString(),
		factories:       make(map[string]*staging.OutputFileFactory),
		committers:      make(map[string]*committer.Committer),
	}, nil
}

func (r *Replicator) Start(ctx context.Context) error {
	defer r.dbConn.Close(context.Background())
	defer r.replicationConn.Close(context.Background())

	// Create replication slot if needed
	if err := r.createReplicationSlot(ctx); err != nil {
		return fmt.Errorf("creating replication slot: %w", err)
	}

	// Start replication
	return r.startReplication(ctx)
}

func (r *Replicator) createReplicationSlot(ctx context.Context) error {
	_, err := pglogrepl.CreateReplicationSlot(ctx, r.replicationConn, r.config.Postgres.Slot, "pgoutput", pglogrepl.CreateReplicationSlotOptions{
		Temporary: true,
		Mode:      pglogrepl.LogicalReplication,
	})
	if err != nil {
		// Ignore if slot already exists
		var pgerr *pgconn.PgError
		if errors.As(err, &pgerr) {
			if pgerr.Code == "42710" {
				// Duplicate object error, slot already exists
				return nil
			}
		}
		return fmt.Errorf("error creating replication slot: %w", err)
	}
	return nil
}

func (r *Replicator) startReplication(ctx context.Context) error {
	var startLSN pglogrepl.LSN = 0

	err := pglogrepl.StartReplication(ctx, r.replicationConn, r.config.Postgres.Slot, startLSN, pglogrepl.StartReplicationOptions{
		PluginArgs: []string{
			"proto_version '2'",
			"messages 'true'",
			"streaming 'true'",
			fmt.Sprintf("publication_names '%s'", r.config.Postgres.Publication),
		},
	})
	if err != nil {
		return fmt.Errorf("starting replication: %w", err)
	}

	return r.handleReplication(ctx)
}

// checkpoint flushes the writer and pushes every table's write result
// through stage-then-commit. Staged bundles are handed straight to the
// committer here; a coordinator holding them in checkpoint state between
// the two phases would call the same two functions.
func (r *Replicator) checkpoint(ctx context.Context) error {
	flushed, err := r.writer.Flush(ctx)
	if err != nil {
		return fmt.Errorf("flushing writer: %w", err)
	}

	for _, ft := range flushed {
		location := ft.Table.Location()

		factory, ok := r.factories[location]
		if !ok {
			factory = staging.NewOutputFileFactory(ft.Table, r.jobID, r.subtaskID, r.attempt)
			r.factories[location] = factory
		}

		delta, err := staging.StageCompletedFiles(ctx, r.store, ft.Result, factory.Next, ft.Table.Spec())
		if err != nil {
			return fmt.Errorf("staging files for %s: %w", location, err)
		}
		log.Printf("staged %d manifest(s) for %s", len(delta.Manifests()), location)

		com, ok := r.committers[location]
		if !ok {
			com = committer.NewCommitter(ft.Table)
			r.committers[location] = com
		}

		if err := com.Commit(ctx, delta); err != nil {
			return fmt.Errorf("committing %s: %w", location, err)
		}
		log.Printf("committed checkpoint for %s", location)
	}

	return nil
}

func (r *Replicator) handleReplication(ctx context.Context) error {
	clientXLogPos := pglogrepl.LSN(0)
	standbyMessageTimeout := time.Second * 10
	nextStandbyMessageDeadline := time.Now().Add(standbyMessageTimeout)
	nextCheckpointDeadline := time.Now().Add(r.config.Checkpoint.Interval)
	relations := make(map[uint32]*pglogrepl.RelationMessageV2)
	inStream := false

	for {
		if time.Now().After(nextStandbyMessageDeadline) {
			err := pglogrepl.SendStandbyStatusUpdate(ctx, r.replicationConn, pglogrepl.StandbyStatusUpdate{
				WALWritePosition: clientXLogPos,
			})
			if err != nil {
				return fmt.Errorf("SendStandbyStatusUpdate failed: %w", err)
			}
			nextStandbyMessageDeadline = time.Now().Add(standbyMessageTimeout)
		}

		if time.Now().After(nextCheckpointDeadline) {
			if err := r.checkpoint(ctx); err != nil {
				return fmt.Errorf("checkpoint failed: %w", err)
			}
			nextCheckpointDeadline = time.Now().Add(r.config.Checkpoint.Interval)
		}

		rawMsg, err := r.replicationConn.ReceiveMessage(ctx)
		if err != nil {
			if pgconn.Timeout(err) {
				continue
			}
			return fmt.Errorf("ReceiveMessage failed: %w", err)
		}

		if errMsg, ok := rawMsg.(*pgproto3.ErrorResponse); ok {
			return fmt.Errorf("received Postgres WAL error: %+v", errMsg)
		}

		msg, ok := rawMsg.(*pgproto3.CopyData)
		if !ok {
			// Unexpected message type
			continue
		}

		if len(msg.Data) == 0 {
			return fmt.Errorf("empty CopyData message received")
		}

		// The first byte of msg.Data indicates the message type
		switch msg.Data[0] {
		case pglogrepl.PrimaryKeepaliveMessageByteID: // 'k'
			pkm, err := pglogrepl.ParsePrimaryKeepaliveMessage(msg.Data[1:])
			if err != nil {
				return fmt.Errorf("ParsePrimaryKeepaliveMessage failed: %w", err)
			}
			if pkm.ServerWALEnd > clientXLogPos {
				clientXLogPos = pkm.ServerWALEnd
			}
			if pkm.ReplyRequested {
				nextStandbyMessageDeadline = time.Time{}
			}

		case pglogrepl.XLogDataByteID: // 'w'
			xld, err := pglogrepl.ParseXLogData(msg.Data[1:])
			if err != nil {
				return fmt.Errorf("ParseXLogData failed: %w", err)
			}

			if xld.WALStart > clientXLogPos {
				clientXLogPos = xld.WALStart
			}

			walData := xld.WALData
			logicalMsg, err := pglogrepl.ParseV2(walData, inStream)
			if err != nil {
				return fmt.Errorf("parsing logical replication message: %w", err)
			}

			switch m := logicalMsg.(type) {
			case *pglogrepl.RelationMessageV2:
				relations[m.RelationID] = m
				if err := r.schemaManager.HandleRelationMessage(m); err != nil {
					return fmt.Errorf("handling relation message: %w", err)
				}

			case *pglogrepl.BeginMessage:
				// Transaction boundary; files accumulate until the
				// next checkpoint.

			case *pglogrepl.CommitMessage:

			case *pglogrepl.InsertMessageV2:
				rel, ok := relations[m.RelationID]
				if !ok {
					return fmt.Errorf("unknown relation ID %d", m.RelationID)
				}
				if err := r.writer.WriteInsert(ctx, m, rel); err != nil {
					return fmt.Errorf("writing insert: %w", err)
				}

			case *pglogrepl.UpdateMessageV2:
				rel, ok := relations[m.RelationID]
				if !ok {
					return fmt.Errorf("unknown relation ID %d", m.RelationID)
				}
				if err := r.writer.WriteUpdate(ctx, m, rel); err != nil {
					return fmt.Errorf("writing update: %w", err)
				}

			case *pglogrepl.DeleteMessageV2:
				rel, ok := relations[m.RelationID]
				if !ok {
					return fmt.Errorf("unknown relation ID %d", m.RelationID)
				}
				if err := r.writer.WriteDelete(ctx, m, rel); err != nil {
					return fmt.Errorf("writing delete: %w", err)
				}

			case *pglogrepl.LogicalDecodingMessageV2:

			case *pglogrepl.StreamStartMessageV2:
				inStream = true
			case *pglogrepl.StreamStopMessageV2:
				inStream = false
			case *pglogrepl.StreamCommitMessageV2:
			case *pglogrepl.StreamAbortMessageV2:
			default:
				log.Printf("unknown message type in pgoutput stream")
			}

		default:
			// Unknown message type
			return fmt.Errorf("unknown replication message type: %c", msg.Data[0])
		}
	}
}
