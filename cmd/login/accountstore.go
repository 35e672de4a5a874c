package main

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/duskforge/fusioncore/internal/dbadapter"
	"github.com/duskforge/fusioncore/internal/loginstate"
)

// account is the persisted credential row. The account schema itself is out
// of scope per spec.md §1; this is the minimal shape REQ_LOGIN needs.
type account struct {
	AccountID    int64             `json:"account_id"`
	PasswordHash string            `json:"password_hash"`
	Banned       bool              `json:"banned"`
	BanReason    string            `json:"ban_reason"`
	Characters   []characterRecord `json:"characters"`
}

// characterRecord is the character-select summary REQ_LOGIN replies with as
// REP_CHAR_INFO*N.
type characterRecord struct {
	UID     int64  `json:"uid"`
	Name    string `json:"name"`
	Level   int32  `json:"level"`
	ShardID int32  `json:"shard_id"`
}

var errAccountNotFound = errors.New("login: account not found")

// accountStore implements protocol.CredentialChecker against the DB
// adapter's worker-thread job queue, hashing with bcrypt the way
// other_examples' MUD-Engine reference marks as a TODO and fusioncore
// actually wires up.
type accountStore struct {
	db *dbadapter.Adapter
}

func (a *accountStore) CheckCredentials(username, password string) (loginstate.AccountID, bool, string, bool) {
	value, err := a.db.RunSync(func(b dbadapter.Backend) (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		blob, found, err := b.LoadBlob(ctx, "accounts", username)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, errAccountNotFound
		}
		return blob, nil
	})
	if err != nil {
		return 0, false, "", false
	}

	var acc account
	if err := dbadapter.UnmarshalBlob(value.([]byte), &acc); err != nil {
		return 0, false, "", false
	}
	if acc.Banned {
		return 0, true, acc.BanReason, false
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
		return 0, false, "", false
	}
	return loginstate.AccountID(acc.AccountID), false, "", true
}

// LoadCharacters re-reads the account blob for its character-select summary,
// the set REQ_LOGIN hands back as REP_CHAR_INFO*N.
func (a *accountStore) LoadCharacters(username string) map[loginstate.PlayerUID]loginstate.LoadedPlayer {
	value, err := a.db.RunSync(func(b dbadapter.Backend) (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		blob, found, err := b.LoadBlob(ctx, "accounts", username)
		if err != nil || !found {
			return nil, err
		}
		return blob, nil
	})
	if err != nil || value == nil {
		return nil
	}

	var acc account
	if err := dbadapter.UnmarshalBlob(value.([]byte), &acc); err != nil {
		return nil
	}

	players := make(map[loginstate.PlayerUID]loginstate.LoadedPlayer, len(acc.Characters))
	for _, c := range acc.Characters {
		uid := loginstate.PlayerUID(c.UID)
		players[uid] = loginstate.LoadedPlayer{UID: uid, Name: c.Name, Level: c.Level, ShardID: loginstate.ShardID(c.ShardID)}
	}
	return players
}
