package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cbodonnell/tickstream/pkg/ack"
	"github.com/cbodonnell/tickstream/pkg/frame"
	"github.com/cbodonnell/tickstream/pkg/log"
	"github.com/cbodonnell/tickstream/pkg/network"
	"github.com/cbodonnell/tickstream/pkg/repositories"
	"github.com/cbodonnell/tickstream/pkg/repositories/models"
	"github.com/cbodonnell/tickstream/pkg/version"
	"github.com/gorilla/mux"
)

// DefaultFrameLimit is the number of frames listed when no limit is given.
const DefaultFrameLimit = 100

// PeerLister lists connected peers.
type PeerLister interface {
	GetPeers() []*network.Peer
}

// AckLister lists the acknowledgement state of peers.
type AckLister interface {
	Peers() []ack.PeerState
}

// PeerStatus is a connected peer together with its acknowledgement state.
type PeerStatus struct {
	ID          uint32    `json:"id"`
	Connection  string    `json:"connection"`
	Address     string    `json:"address,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
	LastSeen    time.Time `json:"lastSeen"`
	LastAcked   uint32    `json:"lastAcked"`
	StaleAcks   uint64    `json:"staleAcks"`
	SkippedAcks uint64    `json:"skippedAcks"`
	Resets      uint64    `json:"resets"`
}

// FrameDetail is a recorded frame with the scopes it contains.
type FrameDetail struct {
	*models.Frame
	ScopeIDs []uint32 `json:"scopeIDs"`
}

func writeJSON(w http.ResponseWriter, what string, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode %s: %v", what, err)
		http.Error(w, fmt.Sprintf("Failed to encode %s", what), http.StatusInternalServerError)
	}
}

func HandleListPeers(peers PeerLister, acks AckLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		states := make(map[uint32]ack.PeerState)
		for _, s := range acks.Peers() {
			states[s.PeerID] = s
		}

		statuses := make([]PeerStatus, 0)
		for _, p := range peers.GetPeers() {
			s := states[p.ID]
			status := PeerStatus{
				ID:          p.ID,
				Connection:  p.ConnectionType.String(),
				ConnectedAt: p.ConnectedAt,
				LastSeen:    p.LastSeen,
				LastAcked:   s.LastAcked,
				StaleAcks:   s.StaleAcks,
				SkippedAcks: s.SkippedAcks,
				Resets:      s.Resets,
			}
			if p.UDPAddress != nil {
				status.Address = p.UDPAddress.String()
			}
			statuses = append(statuses, status)
		}
		writeJSON(w, "peers", statuses)
	}
}

func HandleListRecordings(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recordings, err := repository.ListRecordings(r.Context())
		if err != nil {
			log.Error("failed to list recordings: %v", err)
			http.Error(w, "Failed to list recordings", http.StatusInternalServerError)
			return
		}
		if recordings == nil {
			recordings = []*models.Recording{}
		}
		writeJSON(w, "recordings", recordings)
	}
}

func HandleListFrames(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := DefaultFrameLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				http.Error(w, "Limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = n
		}

		frames, err := repository.ListFrames(r.Context(), mux.Vars(r)["recordingID"], limit)
		if err != nil {
			log.Error("failed to list frames: %v", err)
			http.Error(w, "Failed to list frames", http.StatusInternalServerError)
			return
		}
		if frames == nil {
			frames = []*models.Frame{}
		}
		writeJSON(w, "frames", frames)
	}
}

func HandleGetFrame(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		frameID, err := strconv.ParseUint(vars["frameID"], 10, 32)
		if err != nil {
			log.Error("failed to parse frameID: %v", err)
			http.Error(w, "Failed to parse frameID", http.StatusBadRequest)
			return
		}

		f, err := repository.LoadFrame(r.Context(), vars["recordingID"], uint32(frameID))
		if err != nil {
			if repositories.IsNotFound(err) {
				http.Error(w, "Frame not found", http.StatusNotFound)
				return
			}
			log.Error("failed to load frame: %v", err)
			http.Error(w, "Failed to load frame", http.StatusInternalServerError)
			return
		}

		ids, err := scopeIDs(f)
		if err != nil {
			log.Error("failed to parse frame %d: %v", f.FrameID, err)
			http.Error(w, "Failed to parse frame", http.StatusInternalServerError)
			return
		}
		writeJSON(w, "frame", FrameDetail{Frame: f, ScopeIDs: ids})
	}
}

// scopeIDs lists the scopes of a stored frame. Stored data is not trusted to
// be well formed.
func scopeIDs(f *models.Frame) (ids []uint32, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed frame: %v", r)
		}
	}()
	ids = frame.New(f.Data, f.Bits).ScopeIDs()
	if ids == nil {
		ids = []uint32{}
	}
	return ids, nil
}

func HandleVersion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, "version", map[string]string{"version": version.Get()})
	}
}
