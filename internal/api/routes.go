package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hostlink-project/hostlink/internal/util"
)

// Version is the HostLink release version, stamped at build time.
var Version = "1.0.0"

// handlePing is a simple health check.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleGetServerInfo returns host system information.
func (s *Server) handleGetServerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, util.GetSystemInfo())
}

// handleGetVersion returns the HostLink version.
func (s *Server) handleGetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": Version})
}

// handleGetState returns the live session state and match identifiers.
func (s *Server) handleGetState(c *gin.Context) {
	snap := s.tracker.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"state":      snap.State,
		"game_id":    snap.GameID,
		"demo_name":  snap.DemoName,
		"started_at": snap.StartedAt,
	})
}

// handleGetPlayers returns the live player table.
func (s *Server) handleGetPlayers(c *gin.Context) {
	c.JSON(http.StatusOK, s.tracker.Snapshot().Players)
}

// handleGetChat returns the chat lines of the current match.
func (s *Server) handleGetChat(c *gin.Context) {
	c.JSON(http.StatusOK, s.tracker.Snapshot().Chat)
}

// handleGetTeamStats returns the last reported statistics per team.
func (s *Server) handleGetTeamStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.tracker.Snapshot().TeamStats)
}

type sayRequest struct {
	Text string `json:"text" binding:"required"`
}

// handleSay queues a chat message for the engine.
func (s *Server) handleSay(c *gin.Context) {
	if s.say == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat sending not available"})
		return
	}

	var req sayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing message text"})
		return
	}

	if !s.say(req.Text) {
		c.JSON(http.StatusConflict, gin.H{"error": "no server running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"queued": true})
}

// handleGetMatches returns the persisted match history, newest first.
func (s *Server) handleGetMatches(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "match history disabled"})
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	matches, err := s.history.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read match history"})
		return
	}
	c.JSON(http.StatusOK, matches)
}

// handleGetMatchDetail returns the participants and team statistics of one
// persisted match.
func (s *Server) handleGetMatchDetail(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "match history disabled"})
		return
	}

	matchID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid match id"})
		return
	}

	players, err := s.history.Participants(matchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read participants"})
		return
	}
	stats, err := s.history.TeamStats(matchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read team stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"match_id":   matchID,
		"players":    players,
		"team_stats": stats,
	})
}

// handleGetCPUUsage returns current CPU usage.
func (s *Server) handleGetCPUUsage(c *gin.Context) {
	usage, err := util.GetCPUUsage()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read CPU usage"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cpu_percent": usage})
}

// handleGetMemoryUsage returns current memory usage.
func (s *Server) handleGetMemoryUsage(c *gin.Context) {
	usage, err := util.GetMemoryUsage()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read memory usage"})
		return
	}
	c.JSON(http.StatusOK, usage)
}

// handleGetDiskUsage returns disk usage for the working directory.
func (s *Server) handleGetDiskUsage(c *gin.Context) {
	usage, err := util.GetDiskUsage(".")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read disk usage"})
		return
	}
	c.JSON(http.StatusOK, usage)
}
