package history

import (
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/flotilla-deploy/flotilla/pkg/event"
)

// An event store backed by a SQL database.

type sqlStore struct {
	conn *sqlx.DB
}

func NewSQL(driver, datasource string) (EventStore, error) {
	conn, err := sqlx.Open(driver, datasource)
	if err != nil {
		return nil, err
	}
	s := &sqlStore{conn: conn}
	if err := s.ensureTables(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *sqlStore) ensureTables() error {
	_, err := s.conn.Exec(`CREATE TABLE IF NOT EXISTS events (
		id          SERIAL PRIMARY KEY,
		parent_id   INTEGER NOT NULL DEFAULT 0,
		stamp       TIMESTAMP WITH TIME ZONE NOT NULL,
		actor       TEXT NOT NULL,
		action      TEXT NOT NULL,
		object_type TEXT NOT NULL,
		object_name TEXT NOT NULL,
		deployment  TEXT NOT NULL,
		task        TEXT NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		context     TEXT NOT NULL DEFAULT ''
	)`)
	return errors.Wrap(err, "creating events table")
}

func (s *sqlStore) LogEvent(e *event.Event) (event.ID, error) {
	var context string
	if e.Context != nil {
		buf, err := json.Marshal(e.Context)
		if err != nil {
			return 0, errors.Wrap(err, "encoding event context")
		}
		context = string(buf)
	}

	var id int64
	err := s.conn.QueryRow(`INSERT INTO events
		(parent_id, stamp, actor, action, object_type, object_name, deployment, task, error, context)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		e.ParentID, e.Timestamp, e.Actor, e.Action, e.ObjectType, e.ObjectName,
		e.Deployment, e.Task, e.Error, context,
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "inserting event")
	}
	e.ID = event.ID(id)
	return e.ID, nil
}

func (s *sqlStore) EventsForDeployment(name string) ([]event.Event, error) {
	rows, err := s.conn.Query(`SELECT id, parent_id, stamp, actor, action,
			object_type, object_name, deployment, task, error, context
		FROM events
		WHERE deployment = $1
		ORDER BY id DESC`, name)
	if err != nil {
		return nil, errors.Wrap(err, "querying events")
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var e event.Event
		var context string
		if err := rows.Scan(&e.ID, &e.ParentID, &e.Timestamp, &e.Actor, &e.Action,
			&e.ObjectType, &e.ObjectName, &e.Deployment, &e.Task, &e.Error, &context); err != nil {
			return nil, errors.Wrap(err, "scanning event")
		}
		if context != "" {
			var ctx event.Context
			if err := json.Unmarshal([]byte(context), &ctx); err != nil {
				return nil, errors.Wrap(err, "decoding event context")
			}
			e.Context = &ctx
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
