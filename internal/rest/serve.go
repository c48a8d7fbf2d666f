// Copyright (C) 2024 The burstlight authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/burstlight/burstlight/internal/compute"
	"github.com/burstlight/burstlight/internal/ops"
)

// Serve runs the REST endpoint on the given address, dispatching merge
// and stats requests onto the given compute device. Responses stream
// the pipeline log as plain text
func Serve(addr string, dev compute.Device) error {
	r := gin.Default()
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.POST("/stats", makePostStats(dev))
			v1.POST("/merge", makePostMerge(dev))
		}
	}
	return r.Run(addr)
}

func getPing(c *gin.Context) {
	c.JSON(200, gin.H{
		"message": "pong",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

type postStatsArgs struct {
	FilePatterns []string `json:"filePatterns"`
}

// makePostStats loads the given frames and streams their sample
// statistics back as the load log
func makePostStats(dev compute.Device) gin.HandlerFunc {
	return func(c *gin.Context) {
		logWriter := c.Writer
		var args postStatsArgs
		if err := c.ShouldBind(&args); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		logWriter.Header().Set("Content-Type", "text/plain")
		logWriter.WriteHeader(http.StatusOK)

		if err := printArgs(logWriter, "Arguments:\n", "\n", args); err != nil {
			fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
			return
		}

		ctx := ops.NewContext(logWriter, dev)
		promises, err := ops.NewOpLoadMany(args.FilePatterns).MakePromises(nil, ctx)
		if err != nil {
			fmt.Fprintf(logWriter, "Error globbing filenames: %s\n", err.Error())
			return
		}
		if _, err = ops.MaterializeAll(promises, ctx.MaxThreads); err != nil {
			fmt.Fprintf(logWriter, "error: %s\n", err.Error())
		}
		logWriter.(http.Flusher).Flush()
	}
}

type postMergeArgs struct {
	FilePatterns []string     `json:"filePatterns"`
	Merge        *ops.OpMerge `json:"merge"`
	Save         *ops.OpSave  `json:"save"`
}

// makePostMerge runs the full burst pipeline: load the matched files,
// merge them with the posted parameters, save the result
func makePostMerge(dev compute.Device) gin.HandlerFunc {
	return func(c *gin.Context) {
		logWriter := c.Writer
		var args postMergeArgs
		if err := c.ShouldBind(&args); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if args.Merge == nil {
			args.Merge = ops.NewOpMergeDefault()
		}

		logWriter.Header().Set("Content-Type", "text/plain")
		logWriter.WriteHeader(http.StatusOK)

		if err := printArgs(logWriter, "Arguments:\n", "\n", args); err != nil {
			fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
			return
		}

		ctx := ops.NewContext(logWriter, dev)
		seq := ops.NewOpSequence(ops.NewOpLoadMany(args.FilePatterns), args.Merge)
		if args.Save != nil {
			seq.Append(args.Save)
		}
		promises, err := seq.MakePromises(nil, ctx)
		if err != nil {
			fmt.Fprintf(logWriter, "error: %s\n", err.Error())
			logWriter.(http.Flusher).Flush()
			return
		}
		if _, err = ops.MaterializeAll(promises, ctx.MaxThreads); err != nil {
			fmt.Fprintf(logWriter, "error: %s\n", err.Error())
		}
		logWriter.(http.Flusher).Flush()
	}
}
