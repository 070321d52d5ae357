package hypervisor

import (
	"context"
	"fmt"
	"net/url"

	"github.com/vmware/govmomi"
	"github.com/vmware/govmomi/find"
	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/session"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/soap"
)

// NewVsphereClient creates and authenticates a new vSphere client connection
// to a vCenter or standalone ESXi host.
//
// Parameters:
//   - ctx: the context for the API request.
//   - hostURL: the SDK endpoint (e.g., "https://vcenter.example.com/sdk").
//   - username: the username for authentication.
//   - password: the password for authentication.
//   - insecure: if true, skips TLS certificate verification.
//
// Returns an error if:
//   - the host URL cannot be parsed,
//   - the vim25 client creation fails,
//   - or authentication fails.
func NewVsphereClient(ctx context.Context, hostURL, username, password string, insecure bool) (*govmomi.Client, error) {
	u, err := soap.ParseURL(hostURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse vSphere URL: %w", err)
	}

	u.User = url.UserPassword(username, password)

	soapClient := soap.NewClient(u, insecure)

	vimClient, err := vim25.NewClient(ctx, soapClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create vim25 client: %w", err)
	}

	client := &govmomi.Client{
		Client:         vimClient,
		SessionManager: session.NewManager(vimClient),
	}

	if err := client.Login(ctx, u.User); err != nil {
		return nil, fmt.Errorf("failed to login to vSphere host: %w", err)
	}

	return client, nil
}

// vsphereFinder wraps a datacenter-scoped inventory finder.
type vsphereFinder struct {
	finder *find.Finder
}

func newVsphereFinder(ctx context.Context, vc *vim25.Client) (*vsphereFinder, error) {
	finder := find.NewFinder(vc, true)

	dc, err := finder.DefaultDatacenter(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve default datacenter: %w", err)
	}
	finder.SetDatacenter(dc)

	return &vsphereFinder{finder: finder}, nil
}

func (f *vsphereFinder) vm(ctx context.Context, name string) (*object.VirtualMachine, error) {
	vm, err := f.finder.VirtualMachine(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find VM with name '%s': %w", name, err)
	}
	return vm, nil
}

func (f *vsphereFinder) placement(ctx context.Context) (*object.Folder, *object.ResourcePool, error) {
	folder, err := f.finder.DefaultFolder(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve default VM folder: %w", err)
	}

	pool, err := f.finder.DefaultResourcePool(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve default resource pool: %w", err)
	}

	return folder, pool, nil
}
