package store

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// Channel is a gating entry: a chat the user has to join.
type Channel struct {
	ID   string
	Name string
	Link string
}

type channelBody struct {
	Name string `json:"name"`
	Link string `json:"link"`
}

// Channels is an insertion-ordered mapping of chat id to Channel.
// On disk it is a JSON object keyed by chat id; key order is kept.
type Channels []Channel

// Get returns the entry with the given id.
func (cs Channels) Get(id string) (Channel, bool) {
	for _, c := range cs {
		if c.ID == id {
			return c, true
		}
	}
	return Channel{}, false
}

// Set replaces the entry with the same id in place, or appends it.
func (cs *Channels) Set(c Channel) {
	for i := range *cs {
		if (*cs)[i].ID == c.ID {
			(*cs)[i] = c
			return
		}
	}
	*cs = append(*cs, c)
}

// Delete removes the entry with the given id and reports whether it existed.
func (cs *Channels) Delete(id string) bool {
	for i := range *cs {
		if (*cs)[i].ID == id {
			*cs = append((*cs)[:i], (*cs)[i+1:]...)
			return true
		}
	}
	return false
}

func (cs Channels) clone() Channels {
	out := make(Channels, len(cs))
	copy(out, cs)
	return out
}

// Merge overlays other on cs: ids already present keep their position but take
// the value from other, new ids are appended in other's order.
func Merge(cs, other Channels) Channels {
	out := cs.clone()
	for _, c := range other {
		out.Set(c)
	}
	return out
}

func (cs Channels) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range cs {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c.ID)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(channelBody{Name: c.Name, Link: c.Link})
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (cs *Channels) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*cs = Channels{}
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("channels: expected object")
	}
	out := Channels{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, ok := tok.(string)
		if !ok {
			return errors.New("channels: expected string key")
		}
		var body channelBody
		if err := dec.Decode(&body); err != nil {
			return errors.Wrapf(err, "channels: entry %s", id)
		}
		out.Set(Channel{ID: id, Name: body.Name, Link: body.Link})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*cs = out
	return nil
}
