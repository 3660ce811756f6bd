package listsvc

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/magnusoverli/sushe-online-sub002/internal/model"
)

// The entry array of a list is cached in redis as a read view. Every write
// to the list invalidates it before the response goes out.

func viewKey(listID string) string {
	return "view:entries:" + listID
}

func (s *Server) cachedEntries(ctx context.Context, listID string) ([]model.Entry, bool) {
	if s.rdb == nil {
		return nil, false
	}
	data, err := s.rdb.Get(ctx, viewKey(listID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		log.Printf("list-service: view cache get %s: %v", listID, err)
		return nil, false
	}
	var entries []model.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Printf("list-service: view cache decode %s: %v", listID, err)
		return nil, false
	}
	return entries, true
}

func (s *Server) storeEntriesView(ctx context.Context, listID string, entries []model.Entry) {
	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, viewKey(listID), data, s.viewTTL).Err(); err != nil {
		log.Printf("list-service: view cache set %s: %v", listID, err)
	}
}

// invalidateView drops the cached read view for listID. Writes call this
// after commit, before publishing and responding.
func (s *Server) invalidateView(ctx context.Context, listID string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, viewKey(listID)).Err(); err != nil {
		log.Printf("list-service: view cache del %s: %v", listID, err)
	}
}
