// Command mkiso packs the kernel into a bootable ISO 9660 image. GRUB's
// El Torito image boots it and loads the kernel with the multiboot command.
package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	out := flag.String("o", "rustic.iso", "output image")
	bootImage := flag.String("eltorito", "/usr/lib/grub/i386-pc/eltorito.img", "GRUB El Torito boot image")
	volume := flag.String("volume", "RUSTIC", "volume identifier")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: mkiso [flags] <kernel.elf>\n")
		fmt.Fprintf(os.Stderr, "Builds a BIOS-bootable ISO that multiboots the kernel\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	img := Image{
		Kernel:    flag.Arg(0),
		BootImage: *bootImage,
		Volume:    *volume,
	}
	if err := img.Build(*out); err != nil {
		fmt.Fprintf(os.Stderr, "Error building image: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", *out)
}
