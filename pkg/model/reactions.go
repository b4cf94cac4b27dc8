package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MaxReactionKeys bounds the distinct emoji kept per message.
const MaxReactionKeys = 2

type Reaction struct {
	Emoji string
	Users []string
}

// Reactions maps emoji to the users who reacted, in the order the emoji
// were first added. It encodes as a JSON object with keys in that order.
type Reactions []Reaction

// Toggle adds user to emoji, or removes them if already present or remove
// is set. An emptied emoji is dropped. A new emoji beyond MaxReactionKeys
// evicts the oldest one.
func (r Reactions) Toggle(emoji, user string, remove bool) Reactions {
	out := make(Reactions, 0, len(r)+1)
	found := false

	for _, re := range r {
		if re.Emoji != emoji {
			out = append(out, re)
			continue
		}
		found = true

		users := make([]string, 0, len(re.Users)+1)
		had := false
		for _, u := range re.Users {
			if u == user {
				had = true
				continue
			}
			users = append(users, u)
		}
		if !had && !remove {
			users = append(users, user)
		}
		if len(users) > 0 {
			out = append(out, Reaction{Emoji: emoji, Users: users})
		}
	}

	if !found && !remove {
		out = append(out, Reaction{Emoji: emoji, Users: []string{user}})
		if len(out) > MaxReactionKeys {
			out = out[len(out)-MaxReactionKeys:]
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// Users returns the users for emoji.
func (r Reactions) Users(emoji string) []string {
	for _, re := range r {
		if re.Emoji == emoji {
			return re.Users
		}
	}
	return nil
}

func (r Reactions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, re := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(re.Emoji)
		if err != nil {
			return nil, err
		}
		users := re.Users
		if users == nil {
			users = []string{}
		}
		val, err := json.Marshal(users)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r *Reactions) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*r = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("reactions: expected object, got %v", tok)
	}

	var out Reactions
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		emoji, ok := tok.(string)
		if !ok {
			return fmt.Errorf("reactions: expected key, got %v", tok)
		}
		var users []string
		if err := dec.Decode(&users); err != nil {
			return fmt.Errorf("reactions: %s: %w", emoji, err)
		}
		out = append(out, Reaction{Emoji: emoji, Users: users})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	if len(out) == 0 {
		out = nil
	}
	*r = out
	return nil
}
