package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"velocity-control-core/longitudinal"
	"velocity-control-core/utils"
)

// maxTrajectoryDatagram bounds one UDP trajectory update.
const maxTrajectoryDatagram = 256 * 1024

// TrajectorySource feeds trajectory updates from the planner into the
// controller. Each UDP datagram carries one complete JSON trajectory; last
// write wins and a malformed datagram leaves the previous trajectory in
// effect.
type TrajectorySource struct {
	conn *net.UDPConn
	ctrl *longitudinal.Controller
	log  *utils.Logger
}

func NewTrajectorySource(addr string, ctrl *longitudinal.Controller, log *utils.Logger) (*TrajectorySource, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("trajectory listen addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("trajectory listen: %w", err)
	}
	return &TrajectorySource{conn: conn, ctrl: ctrl, log: log}, nil
}

// Listen blocks receiving trajectory datagrams until the context is
// canceled or the socket is closed.
func (s *TrajectorySource) Listen(ctx context.Context) {
	s.log.Debug("Trajectory listener started on %s", s.conn.LocalAddr())
	buf := make([]byte, maxTrajectoryDatagram)
	for {
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Error("Trajectory read: %v", err)
			return
		}

		var traj longitudinal.Trajectory
		if err := json.Unmarshal(buf[:n], &traj); err != nil {
			s.log.Error("Trajectory decode: %v", err)
			continue
		}
		if err := s.ctrl.UpdateTrajectory(traj, time.Now()); err != nil {
			s.log.Error("Trajectory rejected: %v", err)
			continue
		}
		s.log.Trace("Trajectory updated: %d points", len(traj.Points))
	}
}

func (s *TrajectorySource) Close() error {
	return s.conn.Close()
}

// loadTrajectoryFile reads a JSON trajectory from disk, used to seed the
// controller before the planner comes up.
func loadTrajectoryFile(path string) (longitudinal.Trajectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return longitudinal.Trajectory{}, fmt.Errorf("read file: %w", err)
	}
	var traj longitudinal.Trajectory
	if err := json.Unmarshal(data, &traj); err != nil {
		return longitudinal.Trajectory{}, fmt.Errorf("unmarshal: %w", err)
	}
	return traj, nil
}
