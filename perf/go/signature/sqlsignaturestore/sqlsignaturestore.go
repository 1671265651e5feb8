// Package sqlsignaturestore implements signature.Store on CockroachDB.
package sqlsignaturestore

import (
	"context"
	"errors"

	"github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgx"
	"github.com/jackc/pgx/v4"
	"go.opencensus.io/trace"
	"go.treeherder.org/infra/go/metrics2"
	"go.treeherder.org/infra/go/now"
	"go.treeherder.org/infra/go/skerr"
	"go.treeherder.org/infra/go/sql/pool"
	"go.treeherder.org/infra/go/sql/sqlutil"
	"go.treeherder.org/infra/perf/go/perferrors"
	"go.treeherder.org/infra/perf/go/signature"
	"go.treeherder.org/infra/perf/go/types"
)

const columns = `id, repository_id, framework_id, signature_hash, extra_options, test, suite, platform,
	option_collection_hash, parent_signature_id, has_subtests, last_updated`

// statement is an SQL statement identifier.
type statement int

const (
	repositoryID statement = iota
	frameworkID
	getByID
	getByHash
	getByKey
	parentOf
	insert
	update
	markHasSubtests
	refreshHasSubtests
	children
	optionCollections
)

var statements = map[statement]string{
	repositoryID: `SELECT id FROM Repository WHERE name=$1`,
	frameworkID:  `SELECT id FROM Framework WHERE name=$1`,
	getByID: `
		SELECT ` + columns + `
		FROM Signature
		WHERE id=$1`,
	getByHash: `
		SELECT ` + columns + `
		FROM Signature
		WHERE repository_id=$1 AND framework_id=$2 AND signature_hash=$3
		ORDER BY id
		LIMIT 1`,
	getByKey: `
		SELECT id, parent_signature_id
		FROM Signature
		WHERE repository_id=$1 AND framework_id=$2 AND signature_hash=$3 AND extra_options=$4`,
	parentOf: `SELECT parent_signature_id FROM Signature WHERE id=$1`,
	insert: `
		INSERT INTO Signature (repository_id, framework_id, signature_hash, extra_options, test, suite,
			platform, option_collection_hash, parent_signature_id, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (repository_id, framework_id, signature_hash, extra_options) DO NOTHING
		RETURNING id`,
	update: `
		UPDATE Signature
		SET parent_signature_id=$2, last_updated=$3
		WHERE id=$1`,
	markHasSubtests: `UPDATE Signature SET has_subtests=true WHERE id=$1`,
	refreshHasSubtests: `
		UPDATE Signature
		SET has_subtests=EXISTS(SELECT 1 FROM Signature AS child WHERE child.parent_signature_id=$1)
		WHERE id=$1`,
	children: `
		SELECT ` + columns + `
		FROM Signature
		WHERE parent_signature_id=$1
		ORDER BY id`,
	optionCollections: `
		SELECT option_collection_hash, option
		FROM OptionCollection
		ORDER BY option_collection_hash, option`,
}

// SignatureStore implements signature.Store.
type SignatureStore struct {
	db pool.Pool

	created metrics2.Counter
}

// New returns a new SignatureStore.
func New(db pool.Pool) *SignatureStore {
	return &SignatureStore{
		db:      db,
		created: metrics2.GetCounter("perf_signature_created"),
	}
}

func scanSignature(row pgx.Row) (*signature.Signature, error) {
	var s signature.Signature
	var parent *int64
	if err := row.Scan(&s.ID, &s.RepositoryID, &s.FrameworkID, &s.Hash, &s.ExtraOptions, &s.Test, &s.Suite,
		&s.Platform, &s.OptionCollectionHash, &parent, &s.HasSubtests, &s.LastUpdated); err != nil {
		return nil, err
	}
	if parent != nil {
		p := types.SignatureID(*parent)
		s.ParentID = &p
	}
	s.LastUpdated = s.LastUpdated.UTC()
	return &s, nil
}

// lookupID runs a single row "SELECT id" statement and returns notFound if
// there is no row.
func lookupID(ctx context.Context, q pgx.Tx, stmt statement, notFound error, args ...interface{}) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, statements[stmt], args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, notFound
	}
	return id, err
}

// checkParentChain walks up from parent and fails if it reaches child or
// the chain is longer than MaxParentDepth.
func checkParentChain(ctx context.Context, tx pgx.Tx, child *int64, parent int64) error {
	cur := parent
	for depth := 0; ; depth++ {
		if child != nil && cur == *child {
			return perferrors.ErrSignatureCycle
		}
		if depth >= signature.MaxParentDepth {
			return perferrors.ErrSignatureCycle
		}
		var next *int64
		if err := tx.QueryRow(ctx, statements[parentOf], cur).Scan(&next); err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		cur = *next
	}
}

// Resolve implements signature.Store.
func (s *SignatureStore) Resolve(ctx context.Context, f signature.FeatureTuple) (*signature.Signature, error) {
	ctx, span := trace.StartSpan(ctx, "sqlsignaturestore.Resolve")
	defer span.End()

	if err := f.Validate(); err != nil {
		return nil, err
	}
	hash := signature.Hash(f)
	extra := signature.CanonicalExtraOptions(f.ExtraOptions)
	options := signature.NormalizeOptions(f.Options)
	optionHash := signature.OptionCollectionHash(options)
	ts := now.Now(ctx)

	var id int64
	created := false
	err := crdbpgx.ExecuteTx(ctx, s.db, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		created = false
		repoID, err := lookupID(ctx, tx, repositoryID, perferrors.ErrUnknownRepository, f.Repository)
		if err != nil {
			return err // Don't wrap - crdbpgx might retry
		}
		fwID, err := lookupID(ctx, tx, frameworkID, perferrors.ErrUnknownFramework, f.Framework)
		if err != nil {
			return err
		}

		if len(options) > 0 {
			args := make([]interface{}, 0, 2*len(options))
			for _, o := range options {
				args = append(args, optionHash, o)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO OptionCollection (option_collection_hash, option) VALUES `+
				sqlutil.ValuesPlaceholders(2, len(options))+` ON CONFLICT DO NOTHING`, args...); err != nil {
				return err
			}
		}

		var parentID *int64
		if f.ParentSignatureHash != "" {
			var pid int64
			err := tx.QueryRow(ctx, `SELECT id FROM Signature WHERE repository_id=$1 AND framework_id=$2 AND signature_hash=$3 ORDER BY id LIMIT 1`,
				repoID, fwID, f.ParentSignatureHash).Scan(&pid)
			if errors.Is(err, pgx.ErrNoRows) {
				return perferrors.ErrPendingParent
			}
			if err != nil {
				return err
			}
			parentID = &pid
		}

		var existingID int64
		var oldParent *int64
		err = tx.QueryRow(ctx, statements[getByKey], repoID, fwID, hash, extra).Scan(&existingID, &oldParent)
		if errors.Is(err, pgx.ErrNoRows) {
			if parentID != nil {
				if err := checkParentChain(ctx, tx, nil, *parentID); err != nil {
					return err
				}
			}
			err = tx.QueryRow(ctx, statements[insert], repoID, fwID, hash, extra, f.Test, f.Suite, f.Platform,
				optionHash, parentID, ts).Scan(&id)
			if err == nil {
				created = true
			} else if errors.Is(err, pgx.ErrNoRows) {
				// Another writer inserted the signature since getByKey.
				err = tx.QueryRow(ctx, statements[getByKey], repoID, fwID, hash, extra).Scan(&existingID, &oldParent)
			}
		}
		if err != nil {
			return err
		}
		if !created {
			id = existingID
			newParent := oldParent
			if parentID != nil {
				if err := checkParentChain(ctx, tx, &existingID, *parentID); err != nil {
					return err
				}
				newParent = parentID
			}
			if _, err := tx.Exec(ctx, statements[update], id, newParent, ts); err != nil {
				return err
			}
			if oldParent != nil && (newParent == nil || *newParent != *oldParent) {
				if _, err := tx.Exec(ctx, statements[refreshHasSubtests], *oldParent); err != nil {
					return err
				}
			}
		}
		if parentID != nil {
			if _, err := tx.Exec(ctx, statements[markHasSubtests], *parentID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, skerr.Wrapf(err, "resolving signature %q in %s/%s", hash, f.Repository, f.Framework)
	}
	if created {
		s.created.Inc(1)
	}
	return s.Get(ctx, types.SignatureID(id))
}

// Get implements signature.Store.
func (s *SignatureStore) Get(ctx context.Context, id types.SignatureID) (*signature.Signature, error) {
	ret, err := scanSignature(s.db.QueryRow(ctx, statements[getByID], id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, skerr.Wrapf(perferrors.ErrNotFound, "signature %d", id)
	}
	return ret, skerr.Wrapf(err, "reading signature %d", id)
}

// GetByHash implements signature.Store.
func (s *SignatureStore) GetByHash(ctx context.Context, repositoryID types.RepositoryID, frameworkID types.FrameworkID, hash string) (*signature.Signature, error) {
	ret, err := scanSignature(s.db.QueryRow(ctx, statements[getByHash], repositoryID, frameworkID, hash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, skerr.Wrapf(perferrors.ErrNotFound, "signature %q", hash)
	}
	return ret, skerr.Wrapf(err, "reading signature %q", hash)
}

// Children implements signature.Store.
func (s *SignatureStore) Children(ctx context.Context, id types.SignatureID) ([]*signature.Signature, error) {
	rows, err := s.db.Query(ctx, statements[children], id)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	defer rows.Close()
	ret := []*signature.Signature{}
	for rows.Next() {
		sig, err := scanSignature(rows)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		ret = append(ret, sig)
	}
	return ret, skerr.Wrap(rows.Err())
}

// OptionCollections implements signature.Store.
func (s *SignatureStore) OptionCollections(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.Query(ctx, statements[optionCollections])
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	defer rows.Close()
	ret := map[string][]string{}
	for rows.Next() {
		var hash, option string
		if err := rows.Scan(&hash, &option); err != nil {
			return nil, skerr.Wrap(err)
		}
		ret[hash] = append(ret[hash], option)
	}
	return ret, skerr.Wrap(rows.Err())
}

// Confirm SignatureStore implements signature.Store.
var _ signature.Store = (*SignatureStore)(nil)
