package s3

import (
	"bytes"
	"encoding/json"
	"flowchain/domain"
	"io"
	"os"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
)

var (
	ArchiveBucket *oss.Bucket

	PutObjectFunc       func(string, io.Reader, ...oss.Option) error
	ArchiveInstanceFunc = ArchiveInstance
)

func Bootstrap() {
	var err error
	ArchiveBucket, err = BuildBucketFromEnv()
	if err != nil {
		panic(err)
	}

	PutObjectFunc = PutObject
}

func BuildBucketFromEnv() (*oss.Bucket, error) {
	endpoint := os.ExpandEnv(os.Getenv("OSS_ENDPOINT"))
	if endpoint == "" {
		endpoint = "dummy"
	}
	accessKey := os.Getenv("OSS_ACCESS_KEY")
	secretKey := os.Getenv("OSS_SECRET_KEY")
	bucket := os.Getenv("OSS_BUCKET")
	if bucket == "" {
		bucket = "flowchain"
	}
	return BuildBucket(endpoint, accessKey, secretKey, bucket)
}

func BuildBucket(endpoint, accesskey, secretKey, bucketName string) (*oss.Bucket, error) {
	// endpoint http://oss-cn-hangzhou.aliyuncs.com
	cli, err := oss.New(endpoint, accesskey, secretKey, oss.HTTPClient(nil))
	if err != nil {
		return nil, err
	}

	bucket, err := cli.Bucket(bucketName)
	if err != nil {
		return nil, err
	}
	return bucket, nil
}

// ArchiveInstance uploads the terminal instance snapshot for audit,
// instances/<id>.json.
func ArchiveInstance(inst *domain.InstanceDetail) error {
	if PutObjectFunc == nil {
		return nil
	}
	body, err := json.Marshal(inst)
	if err != nil {
		return err
	}
	return PutObjectFunc("instances/"+inst.ID.String()+".json", bytes.NewReader(body))
}

func PutObject(key string, r io.Reader, opts ...oss.Option) error {
	span := opentracing.StartSpan("put-object")
	span.SetTag("object-key", key)
	defer span.Finish()

	err := ArchiveBucket.PutObject(key, r, opts...)
	ext.Error.Set(span, err != nil)
	return err
}
