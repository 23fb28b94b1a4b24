package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	diskfs "github.com/diskfs/go-diskfs"
	diskpkg "github.com/diskfs/go-diskfs/disk"
	"github.com/diskfs/go-diskfs/filesystem"
	"github.com/diskfs/go-diskfs/filesystem/iso9660"
)

// Paths inside the image.
const (
	KernelPath    = "/boot/kernel.elf"
	GrubConfig    = "/boot/grub/grub.cfg"
	BootImagePath = "/boot/grub/i386-pc/eltorito.img"
	BootCatalog   = "/boot/boot.cat"
)

const blockSize = 2048

// Image describes what goes into the ISO.
type Image struct {
	Kernel    string
	BootImage string
	Volume    string
}

// grubConfig multiboots the kernel straight away. The console is COM1,
// where the kernel logs.
func grubConfig() string {
	var b strings.Builder
	b.WriteString("serial --unit=0 --speed=38400\n")
	b.WriteString("terminal_input serial console\n")
	b.WriteString("terminal_output serial console\n")
	b.WriteString("set timeout=0\n")
	b.WriteString("menuentry \"rustic\" {\n")
	fmt.Fprintf(&b, "\tmultiboot %s\n", KernelPath)
	b.WriteString("\tboot\n")
	b.WriteString("}\n")
	return b.String()
}

// imageSize leaves room for the ISO descriptors, directories and Rock Ridge
// records on top of the file contents.
func imageSize(files ...string) (int64, error) {
	total := int64(1 << 20)
	for _, f := range files {
		fi, err := os.Stat(f)
		if err != nil {
			return 0, err
		}
		total += (fi.Size() + blockSize - 1) / blockSize * blockSize
	}
	return total, nil
}

// Build writes the image to path, replacing any file already there.
func (img Image) Build(path string) error {
	size, err := imageSize(img.Kernel, img.BootImage)
	if err != nil {
		return err
	}
	_ = os.Remove(path)

	disk, err := diskfs.Create(path, size, diskfs.Raw, diskfs.SectorSize(blockSize))
	if err != nil {
		return fmt.Errorf("mkiso: create %s: %w", path, err)
	}
	spec := diskpkg.FilesystemSpec{Partition: 0, FSType: filesystem.TypeISO9660, VolumeLabel: img.Volume}
	fs, err := disk.CreateFilesystem(spec)
	if err != nil {
		return fmt.Errorf("mkiso: create filesystem: %w", err)
	}

	if err := fs.Mkdir("/boot/grub/i386-pc"); err != nil {
		return err
	}
	if err := copyFile(fs, img.Kernel, KernelPath); err != nil {
		return err
	}
	if err := copyFile(fs, img.BootImage, BootImagePath); err != nil {
		return err
	}
	if err := writeFile(fs, GrubConfig, grubConfig()); err != nil {
		return err
	}

	iso, ok := fs.(*iso9660.FileSystem)
	if !ok {
		return fmt.Errorf("mkiso: unexpected filesystem %T", fs)
	}
	options := iso9660.FinalizeOptions{
		VolumeIdentifier: img.Volume,
		RockRidge:        true,
		ElTorito: &iso9660.ElTorito{
			BootCatalog: BootCatalog,
			Entries: []*iso9660.ElToritoEntry{
				{
					Platform:  iso9660.BIOS,
					Emulation: iso9660.NoEmulation,
					BootFile:  BootImagePath,
					BootTable: true,
					LoadSize:  4,
				},
			},
		},
	}
	if err := iso.Finalize(options); err != nil {
		return fmt.Errorf("mkiso: finalize: %w", err)
	}
	return nil
}

func copyFile(fs filesystem.FileSystem, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_RDWR)
	if err != nil {
		return fmt.Errorf("mkiso: %s: %w", dst, err)
	}
	_, err = io.Copy(out, in)
	_ = out.Close()
	if err != nil {
		return fmt.Errorf("mkiso: copy %s: %w", src, err)
	}
	return nil
}

func writeFile(fs filesystem.FileSystem, dst, content string) error {
	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_RDWR)
	if err != nil {
		return fmt.Errorf("mkiso: %s: %w", dst, err)
	}
	_, err = io.WriteString(out, content)
	_ = out.Close()
	return err
}
