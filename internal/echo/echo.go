/*
 *	cloudrpc allows for clients to call procedures on a compute server remotely.
 *	Copyright (C) 2022 Arsen Musayelyan
 *
 *	This program is free software: you can redistribute it and/or modify
 *	it under the terms of the GNU General Public License as published by
 *	the Free Software Foundation, either version 3 of the License, or
 *	(at your option) any later version.
 *
 *	This program is distributed in the hope that it will be useful,
 *	but WITHOUT ANY WARRANTY; without even the implied warranty of
 *	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 *	GNU General Public License for more details.
 *
 *	You should have received a copy of the GNU General Public License
 *	along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

// Package echo provides demo procedures for the reference server
package echo

import (
	"errors"

	"go.arsenm.dev/cloudrpc/server"
)

// ErrDegenerate is returned when a transformation maps a point to infinity
var ErrDegenerate = errors.New("transformation maps point to infinity")

// Echo contains procedures that return their input in some form
type Echo struct{}

// Echo returns its positional arguments unchanged
func (Echo) Echo(_ *server.Context, args ...any) []any {
	if args == nil {
		return []any{}
	}
	return args
}

// Add returns the sum of two numbers
func (Echo) Add(_ *server.Context, a, b float64) float64 {
	return a + b
}

// Sum returns the sum of any amount of numbers
func (Echo) Sum(_ *server.Context, nums ...float64) float64 {
	var out float64
	for _, n := range nums {
		out += n
	}
	return out
}

// Kwargs returns the keyword arguments of the call
func (Echo) Kwargs(ctx *server.Context) map[string]any {
	return ctx.Kwargs
}

// Fail always returns an error with the given message
func (Echo) Fail(_ *server.Context, msg string) error {
	return errors.New(msg)
}

// TransformPoints applies a 4x4 transformation matrix to a list of points
func TransformPoints(_ *server.Context, points [][3]float64, matrix [4][4]float64) ([][3]float64, error) {
	out := make([][3]float64, len(points))
	for i, p := range points {
		var res [4]float64
		for row := 0; row < 4; row++ {
			res[row] = matrix[row][0]*p[0] + matrix[row][1]*p[1] + matrix[row][2]*p[2] + matrix[row][3]
		}
		if res[3] == 0 {
			return nil, ErrDegenerate
		}
		out[i] = [3]float64{res[0] / res[3], res[1] / res[3], res[2] / res[3]}
	}
	return out, nil
}

// Register registers all demo procedures on s
func Register(s *server.Server) error {
	err := s.RegisterReceiver("echo", Echo{})
	if err != nil {
		return err
	}
	return s.Register("geometry.transform_points", TransformPoints)
}
