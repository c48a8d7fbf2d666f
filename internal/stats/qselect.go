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

package stats

// Select median of an array of float32. Partially reorders the array.
// Array must not contain IEEE NaN
func QSelectMedianFloat32(a []float32) float32 {
	return QSelectFloat32(a, (len(a)>>1)+1)
}

// Select kth lowest element from an array of float32. Partially reorders the array.
// Array must not contain IEEE NaN
func QSelectFloat32(a []float32, k int) float32 {
	left, right := 0, len(a)-1
	for left < right {
		// partition around the middle pivot element
		mid := (left + right) >> 1
		pivot := a[mid]
		l, r := left-1, right+1
		for {
			for {
				l++
				if a[l] >= pivot {
					break
				}
			}
			for {
				r--
				if a[r] <= pivot {
					break
				}
			}
			if l >= r {
				break // index in r
			}
			a[l], a[r] = a[r], a[l]
		}
		index := r

		offset := index - left + 1
		if k <= offset {
			right = index
		} else {
			left = index + 1
			k = k - offset
		}
	}
	return a[left]
}
