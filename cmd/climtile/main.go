/*
Copyright © 2024 the ClimTile authors.
This file is part of ClimTile.

ClimTile is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ClimTile is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ClimTile.  If not, see <http://www.gnu.org/licenses/>.
*/

// Command climtile is a command-line interface for the ClimTile
// climate index engine.
package main

import (
	"fmt"
	"os"

	"github.com/spatialmodel/climtile/climtileutil"
)

func main() {
	if err := climtileutil.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}
