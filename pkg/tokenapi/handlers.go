package tokenapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/d3v3l0/waiter/pkg/registry"
	"github.com/d3v3l0/waiter/pkg/tokens"
)

func includeSet(r *http.Request) map[string]bool {
	set := map[string]bool{}
	for _, v := range r.URL.Query()["include"] {
		set[v] = true
	}
	return set
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleGetToken(w, r)
	case http.MethodPost:
		s.handlePostToken(w, r)
	case http.MethodDelete:
		s.handleDeleteToken(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("token")
	if name == "" {
		if resolved, ok := s.hosts.Resolve(r); ok {
			name = resolved
		}
	}
	if name == "" {
		writeError(w, &registry.Error{Kind: registry.KindValidation, Message: "request supplies neither a token query parameter nor a resolvable host"})
		return
	}

	include := includeSet(r)
	rec, ok, err := s.reg.Get(name, false, include["deleted"])
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, &registry.Error{Kind: registry.KindNotFound, Token: name, Message: fmt.Sprintf("token %q not found", name)})
		return
	}

	w.Header().Set("ETag", tokens.Hash(rec))
	writeJSON(w, http.StatusOK, tokens.ToMap(rec, include["metadata"]))
}

func (s *Server) handlePostToken(w http.ResponseWriter, r *http.Request) {
	user, ok := s.users.Resolve(r)
	if !ok {
		writeError(w, &registry.Error{Kind: registry.KindValidation, Message: "request carries no authenticated user"})
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, &registry.Error{Kind: registry.KindValidation, Message: "malformed JSON body: " + err.Error()})
		return
	}

	queryToken := r.URL.Query().Get("token")
	bodyToken, _ := body["token"].(string)
	if bodyToken != "" && queryToken != "" && bodyToken != queryToken {
		writeError(w, &registry.Error{Kind: registry.KindValidation, Message: "token name in body and query disagree"})
		return
	}
	name := bodyToken
	if name == "" {
		name = queryToken
	}
	delete(body, "token")

	admin := r.URL.Query().Get("update-mode") == "admin"
	ifMatch := r.Header.Get("If-Match")
	cluster := ""
	if s.cluster != nil {
		cluster = s.cluster.Calculate(r)
	}

	res, err := s.reg.CreateOrUpdate(user, name, body, ifMatch, admin, cluster, nil)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("ETag", res.ETag)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":             res.Message,
		"service-description": tokens.ToMap(res.Record, true),
	})
}

func (s *Server) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	user, ok := s.users.Resolve(r)
	if !ok {
		writeError(w, &registry.Error{Kind: registry.KindValidation, Message: "request carries no authenticated user"})
		return
	}

	name := r.URL.Query().Get("token")
	if name == "" {
		writeError(w, &registry.Error{Kind: registry.KindValidation, Message: "token query parameter is required"})
		return
	}
	hardDelete := r.URL.Query().Get("hard-delete") == "true"
	ifMatch := r.Header.Get("If-Match")

	res, err := s.reg.Delete(user, name, ifMatch, hardDelete)
	if err != nil {
		writeError(w, err)
		return
	}
	if !res.Hard {
		w.Header().Set("ETag", res.ETag)
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "deleted " + name, "hard": res.Hard})
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	include := includeSet(r)
	reserved := map[string]bool{"owner": true, "include": true, "can-manage-as-user": true}

	var filters []registry.ListFilter
	for key, values := range query {
		if reserved[key] {
			continue
		}
		set := map[string]bool{}
		for _, v := range values {
			set[v] = true
		}
		filters = append(filters, registry.ListFilter{Key: key, Values: set})
	}

	entries, err := s.reg.ListTokens(registry.ListOptions{
		IncludeDeleted: include["deleted"],
		ShowMetadata:   include["metadata"],
		Owners:         query["owner"],
		CanManageAs:    query.Get("can-manage-as-user"),
		Filters:        filters,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		item := map[string]any{}
		for k, v := range e.Metadata {
			item[k] = v
		}
		item["token"] = e.Token
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleTokenOwners(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	dir, err := s.reg.OwnersMap()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dir)
}

func (s *Server) handlePeerRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var msg registry.PeerRefresh
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, &registry.Error{Kind: registry.KindValidation, Message: "malformed JSON body: " + err.Error()})
		return
	}
	if err := s.reg.ApplyPeerRefresh(msg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleReindex triggers a full rebuild of the owner directory and
// shards over every token name currently in the KV. It is an operator
// endpoint; deployments are expected to restrict it at the network
// layer the same way they restrict /tokens/refresh to peers.
func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	names, err := s.reg.AllTokenNames()
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.reg.Reindex(names); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "tokens-reindexed": len(names)})
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}
