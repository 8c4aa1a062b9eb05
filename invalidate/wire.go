package invalidate

import "github.com/vmihailenco/msgpack/v5"

// wireMessage is the pinned cross-process wire schema for Message.
// Changing field names or tags breaks compatibility between instances
// running different versions of this package.
type wireMessage struct {
	InstanceID string   `msgpack:"instanceId"`
	CacheKeys  []string `msgpack:"cacheKeys"`
}

func encode(m Message) ([]byte, error) {
	return msgpack.Marshal(wireMessage{InstanceID: m.OriginInstanceID, CacheKeys: m.Keys})
}

func decode(b []byte) (Message, error) {
	var w wireMessage
	if err := msgpack.Unmarshal(b, &w); err != nil {
		return Message{}, err
	}
	return Message{OriginInstanceID: w.InstanceID, Keys: w.CacheKeys}, nil
}
