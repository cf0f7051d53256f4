package restexecutor

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/guestbox/guestbox/snapshot"
)

type snapshotHandle struct {
	snapshots snapshot.Store
}

// NewSnapshotHandle creates a new snapshot handle
func NewSnapshotHandle(snapshots snapshot.Store) Register {
	return &snapshotHandle{
		snapshots: snapshots,
	}
}

func (s *snapshotHandle) Register(r *gin.Engine) {
	// Snapshot handle
	r.GET("/snapshot", s.snapshotGet)
	r.GET("/snapshot/:sid", s.snapshotIDGet)
	r.DELETE("/snapshot/:sid", s.snapshotIDDelete)
}

func (s *snapshotHandle) snapshotGet(c *gin.Context) {
	ids := s.snapshots.List()
	c.JSON(http.StatusOK, ids)
}

type snapshotURI struct {
	SnapshotID string `uri:"sid"`
}

func (s *snapshotHandle) snapshotIDGet(c *gin.Context) {
	var uri snapshotURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	rs, err := s.snapshots.Get(uri.SnapshotID)
	if err == snapshot.ErrNotExist {
		c.AbortWithStatus(http.StatusNotFound)
		return
	} else if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"memoryStackSize": len(rs.MemoryStack),
		"rewindStackSize": len(rs.RewindStack),
		"storeDataSize":   len(rs.StoreData),
		"is64Bit":         rs.Is64Bit,
	})
}

func (s *snapshotHandle) snapshotIDDelete(c *gin.Context) {
	var uri snapshotURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if !s.snapshots.Remove(uri.SnapshotID) {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	c.Status(http.StatusOK)
}
